package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewRespectsVerboseOverride(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error", Verbose: true, Format: "text", Output: &buf})
	log.Debug("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("Verbose should force debug level through, got %q", buf.String())
	}
}

func TestNewRespectsQuietOverride(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Quiet: true, Format: "text", Output: &buf})
	log.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("Quiet should suppress info logs, got %q", buf.String())
	}
	log.Error("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("Quiet should still allow error logs, got %q", buf.String())
	}
}

func TestNewJSONFormatProducesJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})
	log.Info("hi", "k", "v")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("json format output = %q, want JSON object", buf.String())
	}
}

func TestColorFormatFallsBackToTextForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "color", Output: &buf})
	log.Info("hi")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("color format over a non-terminal writer should fall back to text, got %q", buf.String())
	}
}

func TestGetAndSetRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	custom := New(Config{Level: "info", Format: "text", Output: &buf})
	Set(custom)
	if Get() != custom {
		t.Fatal("Get() did not return the logger passed to Set()")
	}
}

func TestContextRoundTripsLogger(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Fatal("FromContext() did not return the logger stored by WithLogger()")
	}
}
