package pgfe

import (
	"context"
	"fmt"
	"time"

	"github.com/riftdata/pgfe/internal/driver"
	"github.com/riftdata/pgfe/internal/reqqueue"
)

// The non-blocking API models libpq's poll loop:
// ConnectNIO/ReadInput/HandleInput/FlushOutput never block on the
// socket. pgconn, the driver underneath, is blocking-with-context instead
// of poll-based, so the bridge here runs every blocking driver call on
// the session's dispatch goroutine and lets the NIO methods poll its
// completed arrivals with zero-wait checks. The externally observable
// contract — never blocks, reports readiness, advances state on repeated
// calls, demultiplexes responses in queue order — is preserved exactly.

type connectOutcome struct {
	conn driver.Conn
	err  error
}

// ConnectNIO advances the connection establishment state machine by one
// step without blocking. Call
// it repeatedly, interleaved with SocketReadiness, until State() reaches
// StateConnected or an error is returned.
func (c *Connection) ConnectNIO(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateFailure:
		c.state = StateDisconnected
		fallthrough
	case StateDisconnected:
		if err := c.options.Validate(); err != nil {
			return err
		}
		ch := make(chan connectOutcome, 1)
		c.connectCh = ch
		dialCtx, cancel := context.WithCancel(ctx)
		c.connectCancel = cancel
		dial := c.dial
		connString := c.options.connString()
		c.state = StateEstablishmentWriting
		c.pollingStatus = ReadinessWriting
		go func() {
			conn, err := dial(dialCtx, connString)
			ch <- connectOutcome{conn: conn, err: err}
		}()
		return nil

	case StateEstablishmentReading, StateEstablishmentWriting:
		select {
		case o := <-c.connectCh:
			c.connectCh = nil
			c.connectCancel = nil
			if o.err != nil {
				c.state = StateFailure
				c.pollingStatus = ReadinessFailed
				return fmt.Errorf("pgfe: connect: %w", o.err)
			}
			c.completeConnectLocked(o.conn)
			return nil
		default:
			// Startup still in flight; alternate the establishment
			// phase the way a poll()-driven caller would observe it.
			if c.state == StateEstablishmentWriting {
				c.state = StateEstablishmentReading
				c.pollingStatus = ReadinessReading
			} else {
				c.state = StateEstablishmentWriting
				c.pollingStatus = ReadinessWriting
			}
			return nil
		}

	case StateConnected:
		return nil
	}
	return nil
}

// abortConnect cancels an in-flight establishment attempt; the next
// ConnectNIO poll observes the cancellation and lands in StateFailure.
func (c *Connection) abortConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectCancel != nil {
		c.connectCancel()
	}
}

// SocketReadiness reports which direction of socket activity the caller
// should wait on before the next ConnectNIO/HandleInput call.
func (c *Connection) SocketReadiness() Readiness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollingStatus
}

// ReadInput consumes any input available from the server without
// blocking. Under this driver the dispatch goroutine reads eagerly, so
// the only condition left to surface is a dead connection.
func (c *Connection) ReadInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ErrNotReadyForRequest
	}
	if c.raw.IsClosed() {
		c.state = StateFailure
		c.pollingStatus = ReadinessFailed
		return ErrConnectionLost
	}
	return nil
}

// FlushOutput pushes buffered protocol output toward the server. The
// driver writes eagerly on every send, so the output buffer is always
// flushed; wait is accepted for contract symmetry.
func (c *Connection) FlushOutput(wait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ErrNotReadyForRequest
	}
	return nil
}

// IsOutputFlushed reports whether all queued protocol output has reached
// the socket.
func (c *Connection) IsOutputFlushed() bool {
	return true
}

// dispatch is the session's I/O goroutine: it runs queued driver calls
// one at a time, in queue order, and parks each completed round trip for
// HandleInput to demultiplex. It exits when Disconnect sets closing.
func (c *Connection) dispatch(done chan struct{}) {
	defer close(done)
	for {
		c.mu.Lock()
		for len(c.dispatchQ) == 0 && !c.closing {
			c.dispatchCond.Wait()
		}
		if c.closing {
			c.mu.Unlock()
			return
		}
		j := c.dispatchQ[0]
		c.dispatchQ = c.dispatchQ[1:]
		raw := c.raw
		c.mu.Unlock()

		res, err := j.run(j.ctx, raw)

		c.mu.Lock()
		c.arrived = append(c.arrived, arrival{job: j, result: res, err: err})
		c.mu.Unlock()
	}
}

// HandleInput demultiplexes at most one completed response, classifying
// it against the request queue's front descriptor.
// With wait set it blocks until a response arrives or nothing
// is outstanding; otherwise it returns immediately. The first return
// value reports whether a response was handled.
func (c *Connection) HandleInput(wait bool) (bool, error) {
	for {
		c.mu.Lock()
		if len(c.arrived) > 0 {
			a := c.arrived[0]
			c.arrived = c.arrived[1:]
			handled := c.classifyLocked(a)
			c.mu.Unlock()
			if handled {
				return true, nil
			}
			continue
		}
		outstanding := c.inflight > 0
		c.mu.Unlock()
		if !wait || !outstanding {
			return false, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// classifyLocked routes one arrival to its typed slot, popping the
// request descriptor it resolves. It returns false when the response was
// discarded (aborted pipeline) and the caller should keep draining.
// Caller holds c.mu.
func (c *Connection) classifyLocked(a arrival) bool {
	c.inflight--

	// Transport failure: the session is gone. Pop the descriptor the
	// failed send/read belonged to and surface connection loss.
	if a.err != nil {
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		c.state = StateFailure
		c.pollingStatus = ReadinessFailed
		if c.pipelineStatus == PipelineEnabled {
			c.pipelineStatus = PipelineAborted
		}
		c.pending = append(c.pending, pendingResponse{
			transportErr: fmt.Errorf("%w: %v", ErrConnectionLost, a.err),
		})
		return true
	}

	// ReadyForQuery: the synchronization point. Pops the matching sync
	// descriptor and ends an aborted pipeline.
	if a.job.kind == reqqueue.KindSync {
		c.queue.PopSync()
		if c.pipelineStatus == PipelineAborted {
			c.pipelineStatus = PipelineEnabled
		}
		c.pending = append(c.pending, pendingResponse{readyForQuery: true, syntheticTag: "SYNC"})
		return true
	}

	// In an aborted pipeline every response before the next
	// ReadyForQuery is discarded.
	if c.pipelineStatus == PipelineAborted {
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		return false
	}

	// Fatal server error: stash as Error, pop the descriptor, discard
	// any staged prepared statement.
	if a.result != nil && a.result.Err != nil {
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		se := convertServerError(a.result.Err)
		c.currentError = se
		if c.txStatus == TransactionActive {
			c.txStatus = TransactionFailed
		}
		if c.pipelineStatus == PipelineEnabled {
			c.pipelineStatus = PipelineAborted
		}
		if se.IsConnectionException() {
			c.state = StateFailure
			c.pollingStatus = ReadinessFailed
		}
		c.pending = append(c.pending, pendingResponse{result: a.result})
		return true
	}

	switch a.job.kind {
	case reqqueue.KindExecute:
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		info := NewRowInfo(convertFieldDescriptors(a.result.Fields))
		c.pending = append(c.pending, pendingResponse{result: a.result, rowInfo: info})

	case reqqueue.KindPrepare:
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		ps := a.job.staged
		ps.described = true
		info := NewRowInfo(convertFieldDescriptors(a.result.Fields))
		ps.rowInfo = &info
		ps.paramOIDs = a.result.ParamOIDs
		c.prepared[a.job.name] = ps
		c.lastProcessedName = a.job.name
		c.lastProcessedKind = reqqueue.KindPrepare
		c.pending = append(c.pending, pendingResponse{syntheticTag: "PREPARE"})

	case reqqueue.KindDescribe:
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		if ps, ok := c.prepared[a.job.name]; ok {
			info := NewRowInfo(convertFieldDescriptors(a.result.Fields))
			ps.rowInfo = &info
			ps.paramOIDs = a.result.ParamOIDs
			ps.described = true
		}
		c.lastProcessedName = a.job.name
		c.lastProcessedKind = reqqueue.KindDescribe
		c.pending = append(c.pending, pendingResponse{syntheticTag: "DESCRIBE"})

	case reqqueue.KindUnprepare:
		if _, ok := c.queue.Front(); ok {
			c.queue.Pop()
		}
		if ps, ok := c.prepared[a.job.name]; ok {
			ps.invalidate()
			delete(c.prepared, a.job.name)
		}
		c.lastProcessedName = a.job.name
		c.lastProcessedKind = reqqueue.KindUnprepare
		c.pending = append(c.pending, pendingResponse{syntheticTag: "DEALLOCATE"})
	}
	return true
}

// WaitReadyForQuery drains responses until the ReadyForQuery of the
// pipeline's sync point pops its descriptor, discarding everything before
// it that the caller did not consume.
func (c *Connection) WaitReadyForQuery(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := c.WaitResponse(timeout); err != nil {
			return err
		}
		c.mu.Lock()
		resp := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		if resp.transportErr != nil {
			return resp.transportErr
		}
		if resp.readyForQuery {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return ErrTimedOut
		}
	}
}
