// Package sse decodes the line-oriented event streams used by generation
// backends: Server-Sent-Events framing ("data: {json}" lines with a
// "[DONE]" sentinel) and bare JSON-lines framing (the local daemon
// protocol). The decoder reconstructs complete frames from partial
// network reads and yields payloads strictly in wire arrival order.
//
// Malformed data lines are skipped, never fatal: the decoder
// resynchronizes on the next line. Skips are counted rather than
// swallowed so protocol drift stays visible to callers.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrDone is returned by Next when the stream's explicit terminator
// ("data: [DONE]") is received. It is distinct from io.EOF, which means
// the transport closed without a terminator.
var ErrDone = errors.New("sse: stream done")

// dataPrefix marks an SSE event-data line.
var dataPrefix = []byte("data: ")

// doneSentinel is the explicit stream terminator payload.
var doneSentinel = []byte("[DONE]")

// maxLineSize bounds a single protocol frame; generation deltas are
// small but final frames can carry whole messages.
const maxLineSize = 1 << 20

// Decoder reads one event stream. It is not safe for concurrent use;
// each stream owns its decoder for the duration of one call.
type Decoder struct {
	scanner  *bufio.Scanner
	prefixed bool // SSE framing when true, bare JSON lines when false
	frames   int
	skipped  int
	done     bool
}

// NewDecoder creates a Decoder for SSE framing: only "data: " lines carry
// payloads, "[DONE]" terminates, everything else (blank lines, ": ..."
// comments, "event: ..." names) is protocol noise and skipped silently.
func NewDecoder(r io.Reader) *Decoder {
	return newDecoder(r, true)
}

// NewLineDecoder creates a Decoder for bare JSON-lines framing: every
// non-empty line is expected to be a JSON payload. There is no sentinel;
// the payload itself signals completion.
func NewLineDecoder(r io.Reader) *Decoder {
	return newDecoder(r, false)
}

func newDecoder(r io.Reader, prefixed bool) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Decoder{scanner: scanner, prefixed: prefixed}
}

// Next returns the next complete frame payload, valid JSON guaranteed.
// It blocks only while waiting on the underlying read. Returns ErrDone on
// the explicit terminator, io.EOF when the transport closes cleanly
// without one, and the transport error on mid-stream failure. After any
// error Next keeps returning it.
func (d *Decoder) Next() (json.RawMessage, error) {
	if d.done {
		return nil, ErrDone
	}

	for d.scanner.Scan() {
		line := d.scanner.Bytes()

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var payload []byte
		if d.prefixed {
			if !bytes.HasPrefix(line, dataPrefix) {
				// Comment, event name, or other keep-alive noise.
				continue
			}
			payload = bytes.TrimPrefix(line, dataPrefix)
			if bytes.Equal(bytes.TrimSpace(payload), doneSentinel) {
				d.done = true
				return nil, ErrDone
			}
		} else {
			payload = line
		}

		if !json.Valid(payload) {
			d.skipped++
			continue
		}

		d.frames++
		// Copy out: the scanner reuses its buffer on the next Scan.
		return json.RawMessage(bytes.Clone(payload)), nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Frames returns the number of payloads yielded so far, usable as a
// diagnostics sequence counter.
func (d *Decoder) Frames() int { return d.frames }

// Skipped returns the number of malformed data lines dropped so far.
func (d *Decoder) Skipped() int { return d.skipped }
