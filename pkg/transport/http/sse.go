package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/quillgate/quillgate/pkg/api"
)

// writerState tracks the state of an SSE stream writer.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one frame written
	writerCompleted                    // terminal frame sent
)

// streamFrame is the wire shape of one SSE data line. Delta frames carry
// text; the terminal frame carries done or error plus the malformed-line
// diagnostic count.
type streamFrame struct {
	Delta         string     `json:"delta,omitempty"`
	Done          bool       `json:"done,omitempty"`
	SkippedFrames int        `json:"skipped_frames,omitempty"`
	Error         *api.Error `json:"error,omitempty"`
}

// sseWriter relays generation fragments to the client as data-only SSE.
// Each frame is flushed as it is written so fragments reach the client
// in arrival order without buffering delay. After the terminal frame it
// emits a final "data: [DONE]" sentinel.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteDelta sends one text fragment.
func (s *sseWriter) WriteDelta(delta string) error {
	return s.writeFrame(streamFrame{Delta: delta}, false)
}

// WriteDone sends the terminal completion frame followed by [DONE].
func (s *sseWriter) WriteDone(skipped int) error {
	return s.writeFrame(streamFrame{Done: true, SkippedFrames: skipped}, true)
}

// WriteStreamError sends the terminal error frame followed by [DONE].
// Fragments already delivered stand; the error is never spliced into text.
func (s *sseWriter) WriteStreamError(err error, skipped int) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		apiErr = api.NewUpstreamError(err.Error())
	}
	return s.writeFrame(streamFrame{Error: apiErr, SkippedFrames: skipped}, true)
}

func (s *sseWriter) writeFrame(frame streamFrame, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("stream already completed")
	}

	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshalling frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}

	if terminal {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("writing [DONE]: %w", err)
		}
		if err := s.rc.Flush(); err != nil {
			return fmt.Errorf("flushing [DONE]: %w", err)
		}
		s.state = writerCompleted
	}

	return nil
}

// started reports whether any frame reached the wire. Once true, errors
// must be delivered in-band; the status line is already sent.
func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}
