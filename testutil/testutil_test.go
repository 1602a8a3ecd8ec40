package testutil_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/testutil"
)

func TestScriptedStages(t *testing.T) {
	rec := testutil.NewRecorder()
	p := compose.MustCompose(
		testutil.Step[*testutil.Exchange](rec, "a"),
		testutil.Mark[*testutil.Exchange](rec, "b"),
		testutil.Halt[*testutil.Exchange](rec, "c"),
		testutil.Mark[*testutil.Exchange](rec, "unreached"),
	)

	if err := p(testutil.NewExchange("op"), testutil.Endpoint(rec, "tail")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a-before", "b", "c", "a-after"}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Error("expected no events after reset")
	}
}

func TestFailAndPanic(t *testing.T) {
	boom := errors.New("boom")
	if err := compose.MustCompose(testutil.Fail[int](boom)).Run(0); !errors.Is(err, boom) {
		t.Errorf("Fail: err = %v, want %v", err, boom)
	}
	if err := compose.MustCompose(testutil.Panic[int]("boom")).Run(0); err == nil || err.Error() != "boom" {
		t.Errorf("Panic: err = %v", err)
	}
}

func TestExchange(t *testing.T) {
	type key struct{}
	ex := testutil.NewExchange("op")
	ex.Len = 12
	ex.SetContext(context.WithValue(ex.Context(), key{}, "v"))
	ex.Set("k", 1)

	if ex.Context().Value(key{}) != "v" {
		t.Error("context not replaced")
	}
	if ex.Operation() != "op" || ex.Size() != 12 {
		t.Errorf("unexpected exchange %q/%d", ex.Operation(), ex.Size())
	}
	if v, ok := ex.Get("k"); !ok || v != 1 {
		t.Errorf("Get(k) = %v, %v", v, ok)
	}
}

func TestMockTransport(t *testing.T) {
	m := testutil.NewMockTransport()
	if err := m.Call(1, "ping", nil); err != nil {
		t.Fatalf("Call: %v", err)
	}

	line, err := io.ReadAll(m.Input())
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if string(line) != "{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n" {
		t.Errorf("unexpected input %q", line)
	}

	_, _ = m.Output().Write([]byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"result\":\"pong\"}\n"))
	resp, err := m.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Result != "pong" {
		t.Errorf("Result = %v, want pong", resp.Result)
	}
	if _, err := m.ReadResponse(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}
