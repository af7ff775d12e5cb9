package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// dataPrefix marks a frame candidate line in the event stream.
const dataPrefix = "data: "

// readChunkSize is the read granularity when draining a stream body.
// Frames routinely span chunk boundaries; the decoder's carry-over
// buffer reassembles them.
const readChunkSize = 4096

// Decoder splits a chunked byte stream into event frames. It keeps a
// carry-over buffer so a frame split across chunks is reassembled, and
// drops frame candidates whose payload is not valid JSON.
type Decoder struct {
	buf []byte

	// Drop is invoked for each malformed frame candidate. Defaults to a
	// log warning; tests inject their own to assert on dropped lines.
	Drop func(line string, err error)
}

// NewDecoder creates a decoder with the default drop handler.
func NewDecoder() *Decoder {
	return &Decoder{
		Drop: func(line string, err error) {
			slog.Warn("dropping malformed stream frame", "line", line, "error", err)
		},
	}
}

// Feed consumes one chunk and returns the frames completed by it.
// Partial trailing lines are carried over to the next call.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if frame, ok := d.decodeLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Flush decodes any unterminated trailing line. Call once at stream end.
func (d *Decoder) Flush() []Frame {
	if len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	if frame, ok := d.decodeLine(line); ok {
		return []Frame{frame}
	}
	return nil
}

// decodeLine turns one line into a frame. Non-data lines (blank
// separators, protocol comments, keepalives) are ignored.
func (d *Decoder) decodeLine(line string) (Frame, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false
	}
	payload := line[len(dataPrefix):]
	frame, err := ParseFrame([]byte(payload))
	if err != nil {
		if d.Drop != nil {
			d.Drop(line, err)
		}
		return Frame{}, false
	}
	return frame, true
}

// Frames drains r and yields decoded frames in arrival order. The
// sequence is finite and not restartable: it ends when r reports EOF or
// fails. A read failure is yielded once as the error of the final pair.
func (d *Decoder) Frames(ctx context.Context, r io.Reader) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		chunk := make([]byte, readChunkSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(Frame{}, err)
				return
			}

			n, err := r.Read(chunk)
			if n > 0 {
				for _, frame := range d.Feed(chunk[:n]) {
					if !yield(frame, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				for _, frame := range d.Flush() {
					if !yield(frame, nil) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
		}
	}
}
