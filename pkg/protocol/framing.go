package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxEnvelopeSize bounds a single envelope line (1 MiB).
const DefaultMaxEnvelopeSize = 1 << 20

// FramingError marks a malformed or oversized envelope. The stream has been
// resynchronized to the next line boundary, so the connection can keep
// serving after reporting it; only repeated framing errors should close the
// connection (the server enforces that threshold).
type FramingError struct {
	Reason string
	Cause  error
}

func (e *FramingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error { return e.Cause }

// IsFramingError reports whether err is a recoverable framing failure.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// Codec frames envelopes over a stream socket as newline-delimited JSON,
// one envelope per line. It tolerates envelopes split across multiple reads
// and multiple envelopes arriving in one read, and bounds per-envelope
// memory use.
type Codec struct {
	r           *bufio.Reader
	w           *bufio.Writer
	maxEnvelope int
	wmu         sync.Mutex
}

// NewCodec creates a codec over rw. maxEnvelope <= 0 selects
// DefaultMaxEnvelopeSize.
func NewCodec(rw io.ReadWriter, maxEnvelope int) *Codec {
	if maxEnvelope <= 0 {
		maxEnvelope = DefaultMaxEnvelopeSize
	}
	return &Codec{
		r:           bufio.NewReader(rw),
		w:           bufio.NewWriter(rw),
		maxEnvelope: maxEnvelope,
	}
}

// ReadCommand reads the next command envelope. It returns a *FramingError
// for malformed or oversized input (stream already resynchronized), or the
// underlying I/O error when the connection is gone.
func (c *Codec) ReadCommand() (*Command, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}

	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return nil, &FramingError{Reason: "invalid envelope", Cause: err}
	}
	if cmd.Type == "" {
		return nil, &FramingError{Reason: "missing command type"}
	}
	return &cmd, nil
}

// WriteResult serializes a result envelope followed by a newline and
// flushes. Safe for use from the session goroutine and the server's
// shutdown path concurrently.
func (c *Codec) WriteResult(res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteCommand serializes a command envelope. Client-side counterpart of
// WriteResult.
func (c *Codec) WriteCommand(cmd *Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadResult reads the next result envelope. Client-side counterpart of
// ReadCommand.
func (c *Codec) ReadResult() (*Result, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(line, &res); err != nil {
		return nil, &FramingError{Reason: "invalid envelope", Cause: err}
	}
	return &res, nil
}

// readLine reads one newline-terminated line, enforcing the envelope size
// limit. On overflow the remainder of the line is discarded so the next
// read starts at a fresh envelope boundary.
func (c *Codec) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		buf = append(buf, chunk...)

		if len(buf) > c.maxEnvelope {
			// Discard through end of line before reporting, so the stream
			// stays aligned on envelope boundaries.
			if err == bufio.ErrBufferFull {
				if discardErr := c.discardLine(); discardErr != nil {
					return nil, discardErr
				}
			}
			return nil, &FramingError{
				Reason: fmt.Sprintf("envelope exceeds %d bytes", c.maxEnvelope),
			}
		}

		if err == nil {
			return trimNewline(buf), nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(trimNewline(buf)) > 0 {
			// Final envelope without trailing newline.
			return trimNewline(buf), nil
		}
		return nil, err
	}
}

func (c *Codec) discardLine() error {
	for {
		_, err := c.r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return err
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
