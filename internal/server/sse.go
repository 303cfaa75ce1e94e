package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ssePaddingSize is the size of the comment appended to the first
// data-bearing event. Intermediary proxies buffer small responses; one
// comment past their buffer size defeats that for the rest of the stream.
const ssePaddingSize = 2048

// sseWriter frames events as Server-Sent Events on one HTTP response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	padded  bool
}

// newSSEWriter prepares the response for event streaming. It fails when
// the underlying writer cannot flush incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent frames one named event with a JSON payload. The first event
// written carries the anti-buffering padding comment.
func (s *sseWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n", name, data); err != nil {
		return err
	}
	if !s.padded {
		s.padded = true
		if _, err := fmt.Fprintf(s.w, ": %s\n", strings.Repeat(" ", ssePaddingSize)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
