package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// collect drains a decoder and returns the payloads plus the terminal error.
func collect(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var payloads []string
	for {
		frame, err := d.Next()
		if err != nil {
			return payloads, err
		}
		payloads = append(payloads, string(frame))
	}
}

func TestDecoderDataFrames(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n"
	payloads, err := collect(t, NewDecoder(strings.NewReader(input)))

	if !errors.Is(err, ErrDone) {
		t.Fatalf("terminal error = %v, want ErrDone", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2: %v", len(payloads), payloads)
	}
	if payloads[0] != `{"a":1}` || payloads[1] != `{"b":2}` {
		t.Errorf("payloads out of order or mangled: %v", payloads)
	}
}

func TestDecoderSkipsCommentsAndEventNames(t *testing.T) {
	input := ": keep-alive\nevent: content_block_delta\ndata: {\"ok\":true}\n\ndata: [DONE]\n"
	payloads, err := collect(t, NewDecoder(strings.NewReader(input)))

	if !errors.Is(err, ErrDone) {
		t.Fatalf("terminal error = %v, want ErrDone", err)
	}
	if len(payloads) != 1 || payloads[0] != `{"ok":true}` {
		t.Errorf("payloads = %v, want the single data frame", payloads)
	}
}

func TestDecoderCountsMalformedLines(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {not json}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n"
	d := NewDecoder(strings.NewReader(input))
	payloads, err := collect(t, d)

	if !errors.Is(err, ErrDone) {
		t.Fatalf("terminal error = %v, want ErrDone", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2 (malformed skipped): %v", len(payloads), payloads)
	}
	if d.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", d.Skipped())
	}
	if d.Frames() != 2 {
		t.Errorf("Frames() = %d, want 2", d.Frames())
	}
}

func TestDecoderEOFWithoutSentinel(t *testing.T) {
	input := "data: {\"a\":1}\n"
	payloads, err := collect(t, NewDecoder(strings.NewReader(input)))

	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if len(payloads) != 1 {
		t.Errorf("got %d payloads, want 1", len(payloads))
	}
}

func TestDecoderSticksAfterDone(t *testing.T) {
	input := "data: [DONE]\ndata: {\"late\":true}\n"
	d := NewDecoder(strings.NewReader(input))

	if _, err := d.Next(); !errors.Is(err, ErrDone) {
		t.Fatalf("first Next = %v, want ErrDone", err)
	}
	// Frames after the sentinel are never read.
	if _, err := d.Next(); !errors.Is(err, ErrDone) {
		t.Fatalf("second Next = %v, want ErrDone", err)
	}
}

// failingReader yields some data then a transport error.
type failingReader struct {
	data string
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestDecoderTransportFailureMidStream(t *testing.T) {
	d := NewDecoder(&failingReader{data: "data: {\"a\":1}\n\ndata: {\"b\":2}\n\n"})
	payloads, err := collect(t, d)

	// Both complete frames were delivered before the failure surfaced.
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads before failure, want 2: %v", len(payloads), payloads)
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, ErrDone) {
		t.Fatalf("terminal error = %v, want transport error", err)
	}
}

func TestDecoderPartialLineNotEmitted(t *testing.T) {
	// A frame truncated by the transport never reaches the caller.
	d := NewDecoder(&failingReader{data: "data: {\"a\":1}\n\ndata: {\"trunc"})
	payloads, _ := collect(t, d)

	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want only the complete frame: %v", len(payloads), payloads)
	}
}

func TestLineDecoderBareJSON(t *testing.T) {
	input := "{\"response\":\"po\"}\n{\"response\":\"ng\",\"done\":true}\n"
	payloads, err := collect(t, NewLineDecoder(strings.NewReader(input)))

	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2: %v", len(payloads), payloads)
	}
}

func TestLineDecoderCountsMalformed(t *testing.T) {
	input := "{\"ok\":1}\ngarbage\n{\"ok\":2}\n"
	d := NewLineDecoder(strings.NewReader(input))
	payloads, _ := collect(t, d)

	if len(payloads) != 2 {
		t.Errorf("got %d payloads, want 2", len(payloads))
	}
	if d.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", d.Skipped())
	}
}
