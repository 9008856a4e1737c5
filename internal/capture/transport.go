package capture

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RecordingTransport records the bodies of outgoing POSTs whose path
// contains PathContains, then forwards them to Base. With DryRun set the
// request is answered locally with 200 and never sent.
type RecordingTransport struct {
	Base         http.RoundTripper
	PathContains string
	DryRun       bool

	mu       sync.Mutex
	captured []Captured
}

// RoundTrip implements http.RoundTripper.
func (t *RecordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && strings.Contains(req.URL.Path, t.PathContains) {
		var body []byte
		if req.Body != nil {
			data, err := io.ReadAll(req.Body)
			_ = req.Body.Close()
			if err != nil {
				return nil, err
			}
			body = data
			req.Body = io.NopCloser(bytes.NewReader(data))
		}
		t.mu.Lock()
		t.captured = append(t.captured, Captured{
			URL:        req.URL.String(),
			Method:     req.Method,
			Body:       string(body),
			CapturedAt: time.Now().UTC(),
		})
		t.mu.Unlock()
		if t.DryRun {
			return &http.Response{
				StatusCode:    http.StatusOK,
				Status:        "200 OK",
				Header:        http.Header{"Content-Type": {"text/plain"}},
				Body:          io.NopCloser(strings.NewReader("dry run")),
				ContentLength: int64(len("dry run")),
				Request:       req,
				Proto:         "HTTP/1.1",
				ProtoMajor:    1,
				ProtoMinor:    1,
			}, nil
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Captured returns every recorded request.
func (t *RecordingTransport) Captured() []Captured {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Captured(nil), t.captured...)
}

// Last returns the most recent recorded request.
func (t *RecordingTransport) Last() (Captured, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.captured) == 0 {
		return Captured{}, false
	}
	return t.captured[len(t.captured)-1], true
}
