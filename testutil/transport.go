package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/felixgeelhaar/onion/protocol"
)

// MockTransport buffers line-delimited envelopes for stream transports.
type MockTransport struct {
	in  *bytes.Buffer
	out *bytes.Buffer
	mu  sync.Mutex
}

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		in:  &bytes.Buffer{},
		out: &bytes.Buffer{},
	}
}

// Write queues a request on the transport input.
func (m *MockTransport) Write(req *protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return m.WriteLine(data)
}

// WriteLine queues a raw line on the transport input.
func (m *MockTransport) WriteLine(line []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.in.Write(line); err != nil {
		return err
	}
	_, err := m.in.WriteString("\n")
	return err
}

// Call queues a request for method with the given ID and params.
func (m *MockTransport) Call(id int, method string, params any) error {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  method,
	}
	if id > 0 {
		raw, _ := json.Marshal(id)
		req.ID = raw
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = data
	}
	return m.Write(req)
}

// ReadResponse reads the next response written to the transport output.
func (m *MockTransport) ReadResponse() (*protocol.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, err := m.out.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(line) == 0 {
		return nil, io.EOF
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Input returns the input reader.
func (m *MockTransport) Input() io.Reader {
	return m.in
}

// Output returns the output writer.
func (m *MockTransport) Output() io.Writer {
	return &lockedWriter{mu: &m.mu, w: m.out}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
