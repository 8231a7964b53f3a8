// Package framing implements newline-delimited JSON framing for the daemon
// socket: the decoder accumulates bytes into a line buffer and parses one
// JSON object per '\n'; the encoder serializes one object followed by '\n'.
package framing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agenthub/hub/internal/obs"
)

// MaxFrameBytes is the hard per-message size cap. Frames larger than this
// are dropped and the connection is closed (the decoder reports
// ErrFrameTooLarge to let the caller decide to close).
const MaxFrameBytes = 1 << 20 // 1 MiB

// MaxStreamChunkBytes caps outbound stream_event frames; larger ones are
// dropped silently by the subscription registry (see internal/subscription).
const MaxStreamChunkBytes = 1 << 20

// ErrFrameTooLarge is returned by Decoder.Next when a line exceeds MaxFrameBytes.
var ErrFrameTooLarge = fmt.Errorf("framing: frame exceeds %d bytes", MaxFrameBytes)

// Decoder reads newline-delimited JSON frames from a connection.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// Next reads one frame and unmarshals it into v. It returns ErrFrameTooLarge
// (fatal — caller must close the connection) or any underlying read error
// (typically io.EOF). Malformed JSON on an otherwise well-sized line is
// reported via ok=false, err=nil so the caller can discard-and-continue
// without tearing down the connection.
func (d *Decoder) Next(v interface{}) (ok bool, err error) {
	line, err := d.readLine()
	if err != nil {
		return false, err
	}
	if len(line) == 0 {
		return false, nil
	}
	if uerr := json.Unmarshal(line, v); uerr != nil {
		obs.Warnf("framing: discarding invalid JSON line: %v", uerr)
		return false, nil
	}
	return true, nil
}

func (d *Decoder) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > MaxFrameBytes {
			return nil, ErrFrameTooLarge
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

// Encoder writes newline-delimited JSON frames to a connection.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriterSize(w, 4096)}
}

// Encode marshals v, appends '\n', and flushes. Returns an error (never
// panics) if v exceeds MaxFrameBytes once encoded — callers for outbound
// stream frames should check MaxStreamChunkBytes themselves before calling.
func (e *Encoder) Encode(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(b) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}
