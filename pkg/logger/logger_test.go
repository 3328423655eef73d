package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, Format: FormatJSON})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOrderID(ctx, "order-9")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"request_id\"", "\"order_id\"", "\"stack\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true, Format: FormatJSON})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf, Format: FormatJSON})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf, Format: FormatJSON})
	log.Info(context.Background(), "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info entry should be filtered at warn level: %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" ERROR "); lvl != zerolog.ErrorLevel {
		t.Fatalf("expected error level, got %v", lvl)
	}
}

func TestLoggerRedactsCredentialFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatJSON})

	ctx := log.WithField(context.Background(), "password", "hunter2")
	ctx = log.WithFields(ctx, map[string]any{"refresh_token": "abc", "email": "a@b.c"})
	log.Info(ctx, "login")

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "\"abc\"") {
		t.Fatalf("credentials leaked: %s", out)
	}
	if !strings.Contains(out, "a@b.c") {
		t.Fatalf("expected plain field to survive: %s", out)
	}
}

func TestStackTraceStartsAtCaller(t *testing.T) {
	trace := stackTrace()
	first := strings.SplitN(trace, "\n", 2)[0]
	if strings.Contains(first, "runtime/debug") || strings.HasPrefix(first, "goroutine ") {
		t.Fatalf("expected caller frame first, got %q", first)
	}
}
