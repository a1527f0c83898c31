package pgfe

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/riftdata/pgfe/data"
	"github.com/riftdata/pgfe/internal/reqqueue"
	"github.com/riftdata/pgfe/internal/wire"
)

// Copier is returned by Connection.ExecuteCopyIn/ExecuteCopyOut while a
// COPY is in progress. pgconn only exposes
// whole-statement CopyFrom/CopyTo, so Copier bridges to the incremental
// send/receive contract with an io.Pipe: a background goroutine runs the
// blocking pgconn call against one end of the pipe while Send/Receive
// operate the other end, preserving the caller-visible per-chunk API.
type Copier struct {
	conn      *Connection
	direction CopyDirection

	pw *io.PipeWriter // COPY IN: Send writes here
	pr *io.PipeReader // COPY OUT: Receive reads from here

	rbuf  *wire.Buffer // COPY OUT: bytes read but not yet returned
	chunk []byte

	fieldCount int

	done  chan copyOutcome
	ended bool
}

type copyOutcome struct {
	tag string
	err error
}

// startCopyIn begins a COPY ... FROM STDIN sql, returning a Copier whose
// Send/End feed the server.
func (c *Connection) startCopyIn(ctx context.Context, sql string) (*Copier, error) {
	if err := c.requireNIOReady(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	cp := &Copier{conn: c, direction: CopyDirectionIn, pw: pw, done: make(chan copyOutcome, 1)}

	c.mu.Lock()
	c.queue.Push(reqqueue.Descriptor{Kind: reqqueue.KindExecute})
	c.isCopyInProgress = true
	c.copyDirection = CopyDirectionIn
	c.activeCopier = cp
	raw := c.raw
	c.mu.Unlock()

	go func() {
		tag, err := raw.CopyFrom(ctx, pr, sql)
		cp.done <- copyOutcome{tag: tag, err: err}
	}()
	return cp, nil
}

// startCopyOut begins a COPY ... TO STDOUT sql, returning a Copier whose
// Receive reads lines from the server.
func (c *Connection) startCopyOut(ctx context.Context, sql string) (*Copier, error) {
	if err := c.requireNIOReady(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	cp := &Copier{
		conn:      c,
		direction: CopyDirectionOut,
		pr:        pr,
		rbuf:      wire.NewBuffer(64 * 1024),
		chunk:     make([]byte, 32*1024),
		done:      make(chan copyOutcome, 1),
	}

	c.mu.Lock()
	c.queue.Push(reqqueue.Descriptor{Kind: reqqueue.KindExecute})
	c.isCopyInProgress = true
	c.copyDirection = CopyDirectionOut
	c.activeCopier = cp
	raw := c.raw
	c.mu.Unlock()

	go func() {
		tag, err := raw.CopyTo(ctx, pw, sql)
		_ = pw.Close()
		cp.done <- copyOutcome{tag: tag, err: err}
	}()
	return cp, nil
}

// DataDirection reports whether this Copier is feeding (In) or draining
// (Out) the server.
func (cp *Copier) DataDirection() CopyDirection { return cp.direction }

// FieldCount returns the number of columns the COPY moves, when the
// driver reported it; 0 means unknown (the pgconn bridge does not surface
// the CopyIn/OutResponse column count).
func (cp *Copier) FieldCount() int { return cp.fieldCount }

// DataFormat returns the wire format of column i's COPY data. The pgconn
// bridge always moves COPY payloads as text lines.
func (cp *Copier) DataFormat(i int) data.Format { return data.Text }

// Send writes one chunk of COPY IN data.
func (cp *Copier) Send(chunk []byte) error {
	if cp.direction != CopyDirectionIn {
		return fmt.Errorf("%w: Send called on a COPY OUT copier", ErrInvalidState)
	}
	if cp.ended {
		return fmt.Errorf("%w: copier already ended", ErrInvalidState)
	}
	_, err := cp.pw.Write(chunk)
	return err
}

// End finishes a COPY IN stream; a non-empty errMessage forces the
// server to fail the COPY.
func (cp *Copier) End(errMessage string) error {
	if cp.direction != CopyDirectionIn {
		return fmt.Errorf("%w: End called on a COPY OUT copier", ErrInvalidState)
	}
	if cp.ended {
		return nil
	}
	cp.ended = true
	if errMessage != "" {
		return cp.pw.CloseWithError(fmt.Errorf("%s", errMessage))
	}
	return cp.pw.Close()
}

// Receive returns the next COPY OUT chunk (one line of COPY text/CSV
// output, without its trailing newline), io.EOF once the server signals
// CopyDone, or an error. wait is accepted for
// interface symmetry with the blocking contract; this adapter always
// waits for the next line.
func (cp *Copier) Receive(wait bool) ([]byte, error) {
	if cp.direction != CopyDirectionOut {
		return nil, fmt.Errorf("%w: Receive called on a COPY IN copier", ErrInvalidState)
	}
	for {
		avail := cp.rbuf.Bytes()[cp.rbuf.Position():]
		if k := bytes.IndexByte(avail, '\n'); k >= 0 {
			line, err := cp.rbuf.ReadBytes(k + 1)
			if err != nil {
				return nil, err
			}
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			out := make([]byte, len(line))
			copy(out, line)
			if cp.rbuf.Remaining() == 0 {
				cp.rbuf.Reset()
			}
			return out, nil
		}

		n, err := cp.pr.Read(cp.chunk)
		if n > 0 {
			cp.rbuf.WriteBytes(cp.chunk[:n])
			continue
		}
		if err != nil {
			if err == io.EOF {
				if rem := cp.rbuf.ReadRemainder(); len(rem) > 0 {
					out := make([]byte, len(rem))
					copy(out, rem)
					return out, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// WaitCompletion collects the terminal Completion after End()/EOF.
func (cp *Copier) WaitCompletion() (Completion, error) {
	outcome := <-cp.done
	c := cp.conn
	c.mu.Lock()
	if front, ok := c.queue.Front(); ok && front.Kind == reqqueue.KindExecute {
		c.queue.Pop()
	}
	c.isCopyInProgress = false
	c.activeCopier = nil
	c.mu.Unlock()
	if outcome.err != nil {
		return Completion{}, outcome.err
	}
	return NewCompletion(outcome.tag), nil
}
