package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
	"github.com/felixgeelhaar/onion/testutil"
)

func decodeLines(t *testing.T, out string) []protocol.Response {
	t.Helper()
	var resps []protocol.Response
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var resp protocol.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("invalid line %q: %v", line, err)
		}
		resps = append(resps, resp)
	}
	return resps
}

func TestStdio(t *testing.T) {
	t.Run("processes lines until EOF", func(t *testing.T) {
		in := strings.NewReader(strings.Join([]string{
			`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"v":"a"}}`,
			``,
			`{"jsonrpc":"2.0","method":"echo","params":{"v":"ignored"}}`,
			`{"jsonrpc":"2.0","id":2,"method":"missing"}`,
			`garbage`,
		}, "\n"))
		var out bytes.Buffer

		s := NewStdio(WithStdin(in), WithStdout(&out))
		if s.Addr() != "stdio" {
			t.Errorf("Addr() = %q", s.Addr())
		}
		if err := s.Serve(context.Background(), compose.MustCompose(echo)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resps := decodeLines(t, out.String())
		if len(resps) != 3 {
			t.Fatalf("expected 3 responses, got %d: %s", len(resps), out.String())
		}
		if resps[0].Error != nil || string(resps[0].ID) != "1" {
			t.Errorf("first response = %+v", resps[0])
		}
		if resps[1].Error == nil || resps[1].Error.Code != protocol.CodeMethodNotFound {
			t.Errorf("second response = %+v", resps[1])
		}
		if resps[2].Error == nil || resps[2].Error.Code != protocol.CodeParseError {
			t.Errorf("third response = %+v", resps[2])
		}
	})

	t.Run("attaches configured metadata", func(t *testing.T) {
		in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"token"}` + "\n")
		var out bytes.Buffer

		p := compose.MustCompose(func(m *Message, _ compose.Next) error {
			return m.Reply(protocol.GetMeta(m.Context(), "Authorization"))
		})
		s := NewStdio(WithStdin(in), WithStdout(&out), WithStdioMeta(protocol.Meta{"Authorization": "Bearer t"}))
		if err := s.Serve(context.Background(), p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resps := decodeLines(t, out.String())
		if len(resps) != 1 || resps[0].Result != "Bearer t" {
			t.Errorf("responses = %+v", resps)
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- NewStdio(WithStdin(pr), WithStdout(io.Discard)).Serve(ctx, compose.MustCompose(echo))
		}()

		cancel()
		select {
		case err := <-errCh:
			if err != context.Canceled {
				t.Errorf("err = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})

	t.Run("works with the mock transport", func(t *testing.T) {
		mock := testutil.NewMockTransport()
		mock.Call(1, "echo", map[string]string{"v": "x"})

		s := NewStdio(WithStdin(mock.Input()), WithStdout(mock.Output()))
		if err := s.Serve(context.Background(), compose.MustCompose(echo)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := mock.ReadResponse()
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error response %+v", resp.Error)
		}
	})
}
