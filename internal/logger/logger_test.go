package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewWritesJSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf, ServiceName: "outreach-test"})

	l.WithField(FieldSearchID, "SEARCH_1").Info("run started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "run started" {
		t.Fatalf("unexpected message: %v", line["message"])
	}
	if line["service"] != "outreach-test" {
		t.Fatalf("unexpected service: %v", line["service"])
	}
	if line[FieldSearchID] != "SEARCH_1" {
		t.Fatalf("expected search id field, got %v", line[FieldSearchID])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != Default() {
		t.Fatalf("expected default logger without context value")
	}

	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	ctx, derived := With(l.WithContext(context.Background()), Fields{FieldJobID: "job-1"})
	if FromContext(ctx) != derived {
		t.Fatalf("expected derived logger stored in context")
	}
	derived.Warn("slow")
	if !bytes.Contains(buf.Bytes(), []byte(`"job_id":"job-1"`)) {
		t.Fatalf("expected job id in output, got %s", buf.String())
	}
}
