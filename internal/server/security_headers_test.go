package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name      string
		path      string
		https     bool
		wantCache string
		wantHSTS  string
	}{
		{name: "api over http", path: "/api/v1/schedule", wantCache: "no-store"},
		{name: "avatar", path: "/avatars/speakers/sw/swyx.png"},
		{name: "api over https", path: "/api/v1/talks", https: true, wantCache: "no-store", wantHSTS: "max-age=31536000; includeSubDomains"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.https {
				req.Header.Set("X-Forwarded-Proto", "https")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
			}
			if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Fatalf("X-Frame-Options=%q, want DENY", got)
			}
			if got := rr.Header().Get("Content-Security-Policy"); got == "" {
				t.Fatalf("expected Content-Security-Policy header")
			}
			if got := rr.Header().Get("Cache-Control"); got != tc.wantCache {
				t.Fatalf("Cache-Control=%q, want %q", got, tc.wantCache)
			}
			if got := rr.Header().Get("Strict-Transport-Security"); got != tc.wantHSTS {
				t.Fatalf("Strict-Transport-Security=%q, want %q", got, tc.wantHSTS)
			}
		})
	}
}
