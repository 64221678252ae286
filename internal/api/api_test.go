package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/confplanner/internal/audit"
	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/db/dbtest"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/logbuffer"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/planner"
	"github.com/friendsincode/confplanner/internal/storage"
)

var testSecret = []byte("test-secret-with-enough-length-0123456789")

type fixture struct {
	api     *API
	router  chi.Router
	db      *gorm.DB
	bus     *events.Bus
	planner *planner.Service
	audit   *audit.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := dbtest.Seeded(t)
	bus := events.NewBus()
	logger := zerolog.Nop()

	authSvc := auth.NewService(database, bus, logger).WithCost(bcrypt.MinCost)
	cat := catalog.NewService(database, nil, logger)
	plan := planner.NewService(database, cat, bus, logger)
	auditSvc := audit.NewService(database, bus, logger)

	a := New(database, Options{
		JWTSecret:      testSecret,
		SessionTTL:     time.Hour,
		ConferenceName: "Next.js Conf 2025",
		Timezone:       "America/Los_Angeles",
		MaxAvatarBytes: 1 << 20,
	}, authSvc, cat, plan, auditSvc, bus, logger)

	r := chi.NewRouter()
	a.Routes(r)
	return &fixture{api: a, router: r, db: database, bus: bus, planner: plan, audit: auditSvc}
}

// user creates an account and returns it with a session token.
func (f *fixture) user(t *testing.T, email string, role models.RoleName) (*models.User, string) {
	t.Helper()
	user, err := f.api.auth.Signup(context.Background(), auth.SignupInput{Name: "Test User", Email: email, Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if role != models.RoleAttendee {
		if err := f.db.Model(user).Update("role", role).Error; err != nil {
			t.Fatalf("set role: %v", err)
		}
		user.Role = role
	}
	token, err := auth.IssueSession(testSecret, user, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return user, token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rr)["error"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/talks", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list talks: %d", rr.Code)
	}
	if talks := decode[[]models.Talk](t, rr); len(talks) == 0 {
		t.Fatalf("expected seeded talks")
	}

	rr = f.do(t, http.MethodGet, "/api/v1/talks/search?q=aws&format=workshop", "", nil)
	talks := decode[[]models.Talk](t, rr)
	if rr.Code != http.StatusOK || len(talks) != 1 || talks[0].ID != "aws-ai-workshop" {
		t.Fatalf("search: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/talks/search?level=expert", "", nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_filter" {
		t.Fatalf("expected invalid_filter, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/talks/no-such-talk", "", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "talk_not_found" {
		t.Fatalf("expected talk_not_found, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/tracks", "", nil)
	if tracks := decode[[]models.Track](t, rr); len(tracks) != 5 {
		t.Fatalf("expected 5 tracks, got %d", len(tracks))
	}

	rr = f.do(t, http.MethodGet, "/api/v1/speakers/swyx", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get speaker: %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/api/v1/speakers/nobody", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown speaker, got %d", rr.Code)
	}
}

func TestSignupLoginLogout(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "long-enough",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), auth.SessionCookieName+"=") {
		t.Fatalf("expected session cookie, got %q", rr.Header().Get("Set-Cookie"))
	}

	rr = f.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "long-enough",
	})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "email_taken" {
		t.Fatalf("expected email_taken, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": "A", "email": "bad", "password": "x",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	fields := decode[map[string]any](t, rr)["fields"].(map[string]any)
	if len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", fields)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "long-enough"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	token := decode[map[string]any](t, rr)["token"].(string)

	rr = f.do(t, http.MethodGet, "/api/v1/me", token, nil)
	if rr.Code != http.StatusOK || decode[models.User](t, rr).Email != "ada@example.com" {
		t.Fatalf("me: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	if rr.Code != http.StatusNoContent || !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("logout: %d %q", rr.Code, rr.Header().Get("Set-Cookie"))
	}
}

func TestScheduleRequiresAuth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/schedule", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestScheduleFlow(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "planner@example.com", models.RoleAttendee)

	rr := f.do(t, http.MethodPost, "/api/v1/schedule/course-platform", token, nil)
	if rr.Code != http.StatusCreated || decode[scheduleAddResponse](t, rr).HasConflicts {
		t.Fatalf("first add: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/api/v1/schedule/aws-ai-workshop", token, nil)
	added := decode[scheduleAddResponse](t, rr)
	if rr.Code != http.StatusCreated || !added.HasConflicts || len(added.Conflicts) != 1 || added.Conflicts[0].ID != "course-platform" {
		t.Fatalf("conflicting add: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/api/v1/schedule/aws-ai-workshop", token, nil)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "already_scheduled" {
		t.Fatalf("expected already_scheduled, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/api/v1/schedule/no-such-talk", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/schedule", token, nil)
	sched := decode[planner.Schedule](t, rr)
	if len(sched.Entries) != 2 || len(sched.Conflicts) != 1 {
		t.Fatalf("unexpected schedule %s", rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/schedule/course-platform", token, nil)
	if decode[map[string]any](t, rr)["in_schedule"] != true {
		t.Fatalf("expected in_schedule true: %s", rr.Body.String())
	}

	rr = f.do(t, http.MethodDelete, "/api/v1/schedule/course-platform", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("remove: %d", rr.Code)
	}
	rr = f.do(t, http.MethodDelete, "/api/v1/schedule/course-platform", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("second remove should succeed, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/api/v1/schedule/course-platform", token, nil)
	if decode[map[string]any](t, rr)["in_schedule"] != false {
		t.Fatalf("expected in_schedule false: %s", rr.Body.String())
	}
}

func TestConflictCheck(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "check@example.com", models.RoleAttendee)

	rr := f.do(t, http.MethodPost, "/api/v1/schedule/conflicts", token, conflictCheckRequest{
		TalkIDs: []string{"aws-ai-workshop", "course-platform", "reactive-state"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rr.Code, rr.Body.String())
	}
	report := decode[planner.ConflictReport](t, rr)
	if !report.HasConflicts || len(report.Conflicts) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Conflicts[0].Talk1.ID != "aws-ai-workshop" || report.Conflicts[0].Talk2.ID != "course-platform" {
		t.Fatalf("unexpected pair %+v", report.Conflicts[0])
	}

	rr = f.do(t, http.MethodPost, "/api/v1/schedule/conflicts", token, conflictCheckRequest{})
	if rr.Code != http.StatusOK || decode[planner.ConflictReport](t, rr).HasConflicts {
		t.Fatalf("empty check: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/api/v1/schedule/conflicts", token, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "empty_body" {
		t.Fatalf("expected empty_body, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestScheduleExport(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "ics@example.com", models.RoleAttendee)
	f.do(t, http.MethodPost, "/api/v1/schedule/reactive-state", token, nil)

	rr := f.do(t, http.MethodGet, "/api/v1/schedule/export.ics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), ".ics") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	body := rr.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "reactive-state") {
		t.Fatalf("unexpected calendar:\n%s", body)
	}
}

func TestRatings(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "rater@example.com", models.RoleAttendee)

	rr := f.do(t, http.MethodPut, "/api/v1/talks/turbo-yet/rating", token, rateRequest{Score: 6})
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_score" {
		t.Fatalf("expected invalid_score, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/api/v1/talks/no-such-talk/rating", token, rateRequest{Score: 3})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/api/v1/talks/turbo-yet/rating", token, rateRequest{Score: 4, Comment: "fast"})
	if rr.Code != http.StatusOK {
		t.Fatalf("rate: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/talks/turbo-yet/ratings", "", nil)
	summary := decode[planner.RatingSummary](t, rr)
	if summary.Count != 1 || summary.Average != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/talks/turbo-yet/rating", token, nil)
	if !strings.Contains(rr.Body.String(), `"score":4`) {
		t.Fatalf("unexpected own rating %s", rr.Body.String())
	}
}

func TestAssistantDisabled(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "chat@example.com", models.RoleAttendee)

	rr := f.do(t, http.MethodPost, "/api/v1/assistant/chat", token, chatRequest{})
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "assistant_disabled" {
		t.Fatalf("expected assistant_disabled, got %d", rr.Code)
	}
}

func TestAPIKeys(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "keys@example.com", models.RoleAttendee)
	created := f.bus.Subscribe(events.EventAuditAPIKeyCreate)

	rr := f.do(t, http.MethodPost, "/api/v1/api-keys", token, apiKeyCreateRequest{Name: "ci", ExpirationDays: 7})
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_expiration" {
		t.Fatalf("expected invalid_expiration, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/api-keys", token, apiKeyCreateRequest{Name: "ci"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create key: %d %s", rr.Code, rr.Body.String())
	}
	resp := decode[apiKeyCreateResponse](t, rr)

	select {
	case payload := <-created:
		if payload["resource_id"] != resp.APIKey.ID || payload["user_email"] != "keys@example.com" {
			t.Fatalf("unexpected audit payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected apikey create event")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-API-Key", resp.Key)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("api key auth: %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/api-keys", token, nil)
	if keys := decode[[]models.APIKey](t, rr); len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}

	rr = f.do(t, http.MethodDelete, "/api/v1/api-keys/"+resp.APIKey.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("revoke: %d", rr.Code)
	}
	rr = f.do(t, http.MethodDelete, "/api/v1/api-keys/"+resp.APIKey.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second revoke: expected 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-API-Key", resp.Key)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked key: expected 401, got %d", rr.Code)
	}
}

func avatarRequest(t *testing.T, path, token string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSpeakerAvatarUpload(t *testing.T) {
	f := newFixture(t)
	_, attendee := f.user(t, "attendee@example.com", models.RoleAttendee)
	_, organizer := f.user(t, "organizer@example.com", models.RoleOrganizer)

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, avatarRequest(t, "/api/v1/admin/speakers/swyx/avatar", organizer, png))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without storage, got %d", rr.Code)
	}

	store := storage.NewFilesystemStore(t.TempDir(), storage.AvatarURLPrefix, zerolog.Nop())
	f.api.SetAvatarStore(store)

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, avatarRequest(t, "/api/v1/admin/speakers/swyx/avatar", attendee, png))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("attendee: expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, avatarRequest(t, "/api/v1/admin/speakers/swyx/avatar", organizer, []byte("<html>not an image</html>")))
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, avatarRequest(t, "/api/v1/admin/speakers/nobody/avatar", organizer, png))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, avatarRequest(t, "/api/v1/admin/speakers/swyx/avatar", organizer, png))
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	want := "/avatars/speakers/sw/swyx.png"
	if got := decode[map[string]string](t, rr)["avatar"]; got != want {
		t.Fatalf("avatar url = %q, want %q", got, want)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/speakers/swyx", "", nil)
	if decode[models.Speaker](t, rr).Avatar != want {
		t.Fatalf("speaker not updated: %s", rr.Body.String())
	}
}

func TestAuditList(t *testing.T) {
	f := newFixture(t)
	_, attendee := f.user(t, "a@example.com", models.RoleAttendee)
	_, organizer := f.user(t, "o@example.com", models.RoleOrganizer)

	for _, action := range []models.AuditAction{models.AuditActionUserLogin, models.AuditActionAPIKeyCreate, models.AuditActionUserLogin} {
		if err := f.audit.Log(context.Background(), &models.AuditLog{Action: action}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	rr := f.do(t, http.MethodGet, "/api/v1/admin/audit", attendee, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("attendee: expected 403, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/admin/audit?action=user.login&limit=1", organizer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit list: %d", rr.Code)
	}
	resp := decode[auditPage](t, rr)
	if resp.Total != 2 || len(resp.AuditLogs) != 1 || resp.Limit != 1 {
		t.Fatalf("unexpected audit page %+v", resp)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/admin/audit?start_time=yesterday", organizer, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_filter" {
		t.Fatalf("bad start_time: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSystemLogs(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user(t, "o@example.com", models.RoleOrganizer)

	rr := f.do(t, http.MethodGet, "/api/v1/admin/logs", organizer, nil)
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "log_buffer_disabled" {
		t.Fatalf("without buffer: %d %s", rr.Code, rr.Body.String())
	}

	buf := logbuffer.New(100)
	f.api.SetLogBuffer(buf)
	logger := zerolog.New(logbuffer.NewWriter(buf, nil))
	logger.Info().Str("component", "planner").Msg("schedule item added")
	logger.Warn().Str("component", "cache").Msg("disabling Redis cache due to error")

	rr = f.do(t, http.MethodGet, "/api/v1/admin/logs?level=warn", organizer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logs: %d %s", rr.Code, rr.Body.String())
	}
	resp := decode[struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}](t, rr)
	if resp.Count != 1 || resp.Entries[0].Component != "cache" {
		t.Fatalf("unexpected logs %+v", resp)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/admin/logs?limit=0", organizer, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_limit" {
		t.Fatalf("bad limit: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/admin/logs/components", organizer, nil)
	comps := decode[map[string][]string](t, rr)["components"]
	if len(comps) != 2 || comps[0] != "cache" {
		t.Fatalf("components = %v", comps)
	}

	rr = f.do(t, http.MethodDelete, "/api/v1/admin/logs", organizer, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/api/v1/admin/logs/stats", organizer, nil)
	if stats := decode[logbuffer.Stats](t, rr); stats.Count != 0 || stats.Capacity != 100 {
		t.Fatalf("stats after clear = %+v", stats)
	}
}

func TestEventsStreamsOwnScheduleChanges(t *testing.T) {
	f := newFixture(t)
	user, token := f.user(t, "ws@example.com", models.RoleAttendee)
	other, _ := f.user(t, "other@example.com", models.RoleAttendee)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	for !f.bus.HasSubscribers(events.EventRatingSubmitted) {
		select {
		case <-ctx.Done():
			t.Fatalf("handler never subscribed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := f.planner.Add(ctx, other.ID, "turbo-yet"); err != nil {
		t.Fatalf("Add other: %v", err)
	}
	if _, err := f.planner.Add(ctx, user.ID, "dx-ai-age"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if msg.Type != string(events.EventScheduleAdded) || msg.Payload["user_id"] != user.ID || msg.Payload["talk_id"] != "dx-ai-age" {
		t.Fatalf("unexpected event %s", data)
	}

	if _, err := f.planner.Rate(ctx, other.ID, "turbo-yet", 3, ""); err != nil {
		t.Fatalf("Rate other: %v", err)
	}
	if _, err := f.planner.Rate(ctx, user.ID, "dx-ai-age", 5, "great"); err != nil {
		t.Fatalf("Rate: %v", err)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read rating: %v", err)
	}
	msg.Payload = nil
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode rating event: %v", err)
	}
	if msg.Type != string(events.EventRatingSubmitted) || msg.Payload["user_id"] != user.ID || msg.Payload["talk_id"] != "dx-ai-age" {
		t.Fatalf("unexpected rating event %s", data)
	}
}
