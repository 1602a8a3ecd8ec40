package middleware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
	"github.com/felixgeelhaar/onion/testutil"
)

type exchange = testutil.Exchange

// invoke runs mws around endpoint for c.
func invoke(c *exchange, endpoint func(*exchange) error, mws ...compose.Middleware[*exchange]) error {
	return compose.MustCompose(mws...).Bind(endpoint)(c)
}

func ok(*exchange) error { return nil }

// mockLogger captures log calls for testing.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level   string
	message string
	fields  []Field
}

func (l *mockLogger) add(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: msg, fields: fields})
}

func (l *mockLogger) Info(msg string, fields ...Field)  { l.add("info", msg, fields) }
func (l *mockLogger) Error(msg string, fields ...Field) { l.add("error", msg, fields) }
func (l *mockLogger) Debug(msg string, fields ...Field) { l.add("debug", msg, fields) }
func (l *mockLogger) Warn(msg string, fields ...Field)  { l.add("warn", msg, fields) }

func (e logEntry) field(key string) (any, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func TestLogging(t *testing.T) {
	t.Run("logs successful invocations", func(t *testing.T) {
		logger := &mockLogger{}

		err := invoke(testutil.NewExchange("test/op"), ok, Logging[*exchange](logger))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(logger.entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(logger.entries))
		}

		entry := logger.entries[0]
		if entry.level != "info" {
			t.Errorf("level = %q, want %q", entry.level, "info")
		}
		if entry.message != "request completed" {
			t.Errorf("message = %q, want %q", entry.message, "request completed")
		}
		if op, _ := entry.field("operation"); op != "test/op" {
			t.Errorf("operation = %v, want %q", op, "test/op")
		}
		if _, ok := entry.field("duration"); !ok {
			t.Error("expected duration field")
		}
	})

	t.Run("logs failures at error level", func(t *testing.T) {
		logger := &mockLogger{}
		boom := errors.New("boom")

		err := invoke(testutil.NewExchange("op"), func(*exchange) error { return boom }, Logging[*exchange](logger))
		if !errors.Is(err, boom) {
			t.Fatalf("expected error to pass through, got %v", err)
		}

		entry := logger.entries[0]
		if entry.level != "error" {
			t.Errorf("level = %q, want %q", entry.level, "error")
		}
		if msg, _ := entry.field("error"); msg != "boom" {
			t.Errorf("error field = %v, want %q", msg, "boom")
		}
	})

	t.Run("includes request id when present", func(t *testing.T) {
		logger := &mockLogger{}
		c := testutil.NewExchange("op")

		err := invoke(c, ok,
			RequestIDWithGenerator[*exchange](func() string { return "req-1" }),
			Logging[*exchange](logger),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if id, _ := logger.entries[0].field("request_id"); id != "req-1" {
			t.Errorf("request_id = %v, want %q", id, "req-1")
		}
	})
}

func TestLogging_Options(t *testing.T) {
	t.Run("skipped operations only log failures", func(t *testing.T) {
		logger := &mockLogger{}
		mw := Logging[*exchange](logger, WithLogSkipOperations("GET /health"))

		_ = invoke(testutil.NewExchange("GET /health"), ok, mw)
		if len(logger.entries) != 0 {
			t.Fatalf("expected no entries, got %d", len(logger.entries))
		}

		_ = invoke(testutil.NewExchange("GET /health"), func(*exchange) error {
			return protocol.NewUnavailable("draining")
		}, mw)
		if len(logger.entries) != 1 || logger.entries[0].level != "error" {
			t.Fatalf("entries = %+v", logger.entries)
		}
		if code, _ := logger.entries[0].field("code"); code != protocol.CodeUnavailable {
			t.Errorf("code = %v, want %d", code, protocol.CodeUnavailable)
		}
	})

	t.Run("slow invocations warn", func(t *testing.T) {
		logger := &mockLogger{}
		slow := func(*exchange) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}

		_ = invoke(testutil.NewExchange("op"), slow, Logging[*exchange](logger, WithLogSlowThreshold(time.Millisecond)))
		if len(logger.entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(logger.entries))
		}
		if e := logger.entries[0]; e.level != "warn" || e.message != "slow request" {
			t.Errorf("entry = %+v", e)
		}
	})
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Info("x", F("k", 1))
	l.Error("x")
	l.Debug("x")
	l.Warn("x")
}

func TestDefaultStack(t *testing.T) {
	t.Run("recovers panics and logs them", func(t *testing.T) {
		logger := &mockLogger{}
		stack := DefaultStack[*exchange](logger)
		if len(stack) != 3 {
			t.Fatalf("expected 3 stages, got %d", len(stack))
		}

		err := invoke(testutil.NewExchange("op"), func(*exchange) error { panic("kaboom") }, stack...)
		if err == nil {
			t.Fatal("expected error")
		}

		if len(logger.entries) != 1 || logger.entries[0].level != "error" {
			t.Fatalf("expected one error entry, got %+v", logger.entries)
		}
		if _, ok := logger.entries[0].field("request_id"); !ok {
			t.Error("expected request_id field")
		}
	})

	t.Run("with timeout sets a deadline", func(t *testing.T) {
		stack := DefaultStackWithTimeout[*exchange](NopLogger{}, timeoutForTest)
		if len(stack) != 4 {
			t.Fatalf("expected 4 stages, got %d", len(stack))
		}

		var hasDeadline bool
		err := invoke(testutil.NewExchange("op"), func(c *exchange) error {
			_, hasDeadline = c.Context().Deadline()
			return nil
		}, stack...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !hasDeadline {
			t.Error("expected deadline downstream")
		}
	})
}
