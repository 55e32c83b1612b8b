package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWithWriterJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	log.With(String("component", "session")).Warn(context.Background(), "fallback connect",
		Err(errors.New("engine busy")),
		Bool("reuse", false),
		Float64("spot", 8.5),
		Int("attempt", 2),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"msg":       "fallback connect",
		"level":     "WARN",
		"component": "session",
		"error":     "engine busy",
		"reuse":     false,
		"spot":      8.5,
		"attempt":   float64(2),
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("record[%q] = %v, want %v", k, rec[k], v)
		}
	}
}

func TestLevelFiltersLowerRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
	log.Error(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("error record missing: %q", buf.String())
	}
}

func TestErrNilIsEmpty(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v, want empty error field", f)
	}
}

func TestFileOutputIsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pathsim.log")
	log := New(Config{Format: "text", Output: path, MaxSizeMB: 1})
	log.Info(context.Background(), "to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file = %q, want record", data)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("EnsureRequestID id = %q, ctx id = %q", id, RequestIDFromContext(ctx))
	}
	again, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(again) != id {
		t.Fatalf("EnsureRequestID replaced existing id %q with %q", id, id2)
	}

	l := Noop()
	if LoggerFromContext(ContextWithLogger(ctx, l)) == nil {
		t.Fatalf("LoggerFromContext returned nil after ContextWithLogger")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("LoggerFromContext on bare context should be nil")
	}
}
