package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/friendsincode/confplanner/internal/logbuffer"
)

func TestSetupWithWriterEmitsJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf, nil)
	logger.Info().Str("component", "planner").Str("talk_id", "t1").Msg("added")
	logger.Debug().Msg("hidden")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "planner" || entry["talk_id"] != "t1" || entry["message"] != "added" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetupWithWriterDevelopmentIsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf, nil)
	logger.Debug().Msg("visible")
	if !bytes.Contains(buf.Bytes(), []byte("visible")) {
		t.Fatalf("expected debug output in development, got %q", buf.String())
	}
}

func TestSetupWithWriterFeedsBuffer(t *testing.T) {
	var out bytes.Buffer
	lb := logbuffer.New(10)
	logger := SetupWithWriter("development", &out, lb)
	logger.Info().Str("component", "seed").Msg("conference data applied")

	entries := lb.GetAll()
	if len(entries) != 1 || entries[0].Component != "seed" {
		t.Fatalf("buffered entries = %+v", entries)
	}
	if !bytes.Contains(out.Bytes(), []byte("conference data applied")) {
		t.Fatalf("console output missing message: %q", out.String())
	}
}
