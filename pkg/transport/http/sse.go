package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
)

// sseWriter writes server-sent events. Headers are set on the first event.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteData sends v as one "data:" event and flushes it.
func (s *sseWriter) WriteData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.write(data)
}

// Done sends the [DONE] terminator.
func (s *sseWriter) Done() error {
	return s.write([]byte("[DONE]"))
}

func (s *sseWriter) write(data []byte) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// writeChunks emits res as an emulated completion stream followed by
// [DONE].
func writeChunks(w http.ResponseWriter, res *api.Result) error {
	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	sw := newSSEWriter(w)
	for _, chunk := range res.ToChunks() {
		if err := sw.WriteData(chunk); err != nil {
			return err
		}
	}
	return sw.Done()
}
