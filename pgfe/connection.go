package pgfe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riftdata/pgfe/data"
	"github.com/riftdata/pgfe/internal/driver"
	"github.com/riftdata/pgfe/internal/reqqueue"
	"github.com/riftdata/pgfe/pkg/logger"
)

// ConnectionState identifies where a Connection is in its session
// lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateEstablishmentReading
	StateEstablishmentWriting
	StateConnected
	StateFailure
)

// PipelineStatus is the connection's pipeline mode.
type PipelineStatus int

const (
	PipelineDisabled PipelineStatus = iota
	PipelineEnabled
	PipelineAborted
)

// Readiness reports which socket activity a caller should wait on next
// while driving the non-blocking API.
type Readiness int

const (
	ReadinessNone Readiness = iota
	ReadinessReading
	ReadinessWriting
	ReadinessOK
	ReadinessFailed
)

// job is one request handed to the session's dispatch goroutine: the
// descriptor kind it was queued under, plus the driver call that produces
// its response.
type job struct {
	kind   reqqueue.Kind
	name   string
	staged *PreparedStatement
	ctx    context.Context
	run    func(ctx context.Context, raw driver.Conn) (*driver.Result, error)
}

// arrival is a job's completed driver round trip, waiting to be
// demultiplexed by HandleInput in queue order.
type arrival struct {
	job    job
	result *driver.Result
	err    error
}

// pendingResponse is a demultiplexed response ready for WaitResponse/
// ProcessResponses: a row-bearing result, a server error, a synthetic
// completion for prepare/describe/unprepare, or a ReadyForQuery sync
// point.
type pendingResponse struct {
	result        *driver.Result
	rowCursor     int
	rowInfo       RowInfo
	syntheticTag  string
	readyForQuery bool
	transportErr  error
}

// Connection owns one session to a PostgreSQL server: the state machine,
// the request queue, the prepared-statement registry, and the typed
// response slots (Error/Row/Completion).
//
// A Connection is single-goroutine on the caller's side: none of its
// methods may be invoked concurrently. The internal dispatch goroutine
// only ever runs one driver call at a time, in queue order.
type Connection struct {
	mu sync.Mutex

	options Options
	dial    driver.Dialer
	raw     driver.Conn

	state         ConnectionState
	pollingStatus Readiness
	connectCh     chan connectOutcome
	connectCancel context.CancelFunc
	sessionStart  time.Time

	pipelineStatus PipelineStatus
	pipelineBuf    []job

	queue          *reqqueue.Queue
	dispatchQ      []job
	dispatchCond   *sync.Cond
	dispatcherDone chan struct{}
	closing        bool
	inflight       int

	arrived []arrival
	pending []pendingResponse

	currentCompletion *Completion
	currentError      *ServerError
	lastProcessedName string
	lastProcessedKind reqqueue.Kind

	prepared map[string]*PreparedStatement

	isCopyInProgress bool
	copyDirection    CopyDirection
	activeCopier     *Copier

	txStatus     TransactionStatus
	resultFormat data.Format

	errorHandler        ErrorHandler
	noticeHandler       func(*ServerError)
	notificationHandler func(Notification)
}

// NewConnection builds an idle Connection bound to options. dial defaults
// to driver.Dial (the pgx/pgconn adapter) when nil, which production code
// never needs to override; tests may inject a fake.
func NewConnection(options Options, dial driver.Dialer) *Connection {
	if dial == nil {
		dial = driver.Dial
	}
	c := &Connection{
		options:  options,
		dial:     dial,
		state:    StateDisconnected,
		queue:    reqqueue.New(),
		prepared: make(map[string]*PreparedStatement),
	}
	c.dispatchCond = sync.NewCond(&c.mu)
	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the session is usable.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// SessionStartTime returns the session epoch used to invalidate stale
// PreparedStatement/LargeObject handles across reconnects.
func (c *Connection) SessionStartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionStart
}

// SetErrorHandler installs the server-error interception hook: a handler
// returning true consumes the error before it surfaces to the caller.
func (c *Connection) SetErrorHandler(h ErrorHandler) { c.errorHandler = h }

// SetNoticeHandler installs the background notice callback.
func (c *Connection) SetNoticeHandler(h func(*ServerError)) { c.noticeHandler = h }

// SetNotificationHandler installs the background NOTIFY callback.
func (c *Connection) SetNotificationHandler(h func(Notification)) { c.notificationHandler = h }

// ResultFormat returns the format requested for result-set columns of
// subsequent executes.
func (c *Connection) ResultFormat() data.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultFormat
}

// SetResultFormat selects the format result-set columns are requested in
// for subsequent executes.
func (c *Connection) SetResultFormat(f data.Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultFormat = f
}

// Connect blocks until the session reaches StateConnected or timeout
// elapses; timeout < 0 means "use options.ConnectTimeout", timeout == 0
// means wait forever. Internally it loops ConnectNIO the way a caller of
// the non-blocking API would.
func (c *Connection) Connect(ctx context.Context, timeout time.Duration) error {
	if timeout < 0 {
		timeout = c.options.ConnectTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := c.ConnectNIO(ctx); err != nil {
			return err
		}
		switch c.State() {
		case StateConnected:
			return nil
		case StateFailure, StateDisconnected:
			return ErrConnectionLost
		}
		if timeout > 0 && time.Now().After(deadline) {
			c.abortConnect()
			return ErrTimedOut
		}
		time.Sleep(time.Millisecond)
	}
}

// completeConnectLocked installs a freshly dialed raw connection: records
// the session epoch, hooks the notice/notification receivers, and starts
// the dispatch goroutine. Caller holds c.mu.
func (c *Connection) completeConnectLocked(raw driver.Conn) {
	c.raw = raw
	c.state = StateConnected
	c.pollingStatus = ReadinessOK
	c.sessionStart = time.Now()
	c.queue = reqqueue.New()
	c.pending = nil
	c.arrived = nil
	c.pipelineBuf = nil
	c.inflight = 0
	c.txStatus = TransactionIdle
	c.pipelineStatus = PipelineDisabled
	c.prepared = make(map[string]*PreparedStatement)

	// A panicking handler is logged and swallowed; it never propagates
	// into the state machine.
	raw.SetNoticeHandler(func(se *driver.ServerError) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notice handler panicked", "panic", r)
			}
		}()
		if h := c.noticeHandler; h != nil {
			h(convertServerError(se))
		}
	})
	raw.SetNotificationHandler(func(n driver.Notification) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notification handler panicked", "panic", r)
			}
		}()
		if h := c.notificationHandler; h != nil {
			h(Notification{PID: n.PID, Channel: n.Channel, Payload: n.Payload})
		}
	})

	c.closing = false
	c.dispatchQ = nil
	done := make(chan struct{})
	c.dispatcherDone = done
	go c.dispatch(done)
}

// Disconnect tears down the raw connection and resets to disconnected.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	raw := c.raw
	done := c.dispatcherDone
	if c.connectCancel != nil {
		c.connectCancel()
		c.connectCancel = nil
	}
	if raw != nil {
		c.closing = true
		c.dispatchCond.Signal()
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	if raw != nil {
		_ = raw.Close(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = nil
	c.dispatcherDone = nil
	c.state = StateDisconnected
	c.pollingStatus = ReadinessNone
	c.queue = reqqueue.New()
	c.pending = nil
	c.arrived = nil
	c.pipelineBuf = nil
	c.dispatchQ = nil
	c.inflight = 0
	c.txStatus = TransactionIdle
	c.pipelineStatus = PipelineDisabled
	for _, ps := range c.prepared {
		ps.invalidate()
	}
	c.prepared = make(map[string]*PreparedStatement)
	return nil
}

// IsReadyForRequest reports whether a synchronous, non-pipelined request
// may be issued right now.
func (c *Connection) IsReadyForRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipelineStatus != PipelineDisabled {
		return false
	}
	return c.state == StateConnected && c.queue.Len() == 0
}

// IsReadyForNIORequest reports whether a request may be queued without
// blocking, which is always true in (non-aborted) pipeline mode.
func (c *Connection) IsReadyForNIORequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return false
	}
	switch c.pipelineStatus {
	case PipelineEnabled:
		return true
	case PipelineAborted:
		return false
	}
	return c.queue.Len() == 0
}

// SetPipelineEnabled toggles pipeline mode; only valid while idle.
func (c *Connection) SetPipelineEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() != 0 {
		return fmt.Errorf("pgfe: busy: cannot change pipeline mode with requests outstanding")
	}
	if enabled {
		c.pipelineStatus = PipelineEnabled
	} else {
		c.pipelineStatus = PipelineDisabled
	}
	return nil
}

// Pipeline returns the current pipeline mode.
func (c *Connection) Pipeline() PipelineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipelineStatus
}

// RequestQueueSize returns the number of outstanding request
// descriptors.
func (c *Connection) RequestQueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// HasUncompletedRequest reports whether any request is outstanding.
func (c *Connection) HasUncompletedRequest() bool {
	return c.RequestQueueSize() > 0
}

// requireNIOReady gates request issuance: with the pipeline disabled the
// queue must be empty, and an aborted pipeline refuses new requests until
// the next sync drains.
func (c *Connection) requireNIOReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ErrNotReadyForRequest
	}
	switch c.pipelineStatus {
	case PipelineAborted:
		return ErrNotReadyForRequest
	case PipelineDisabled:
		if c.queue.Len() != 0 {
			return ErrNotReadyForRequest
		}
	}
	return nil
}

// enqueue pushes the request descriptor and either submits the job to the
// dispatch goroutine (non-pipeline) or buffers it until the next
// SendSync/SendFlush ships the batch (pipeline).
func (c *Connection) enqueue(j job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Push(reqqueue.Descriptor{Kind: j.kind, Name: j.name})
	if c.pipelineStatus == PipelineEnabled {
		c.pipelineBuf = append(c.pipelineBuf, j)
		return
	}
	c.submitLocked(j)
}

func (c *Connection) submitLocked(j job) {
	c.inflight++
	c.dispatchQ = append(c.dispatchQ, j)
	c.dispatchCond.Signal()
}

// SendSync inserts a synchronization point into the pipeline and ships
// every buffered request to the server.
func (c *Connection) SendSync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Push(reqqueue.Descriptor{Kind: reqqueue.KindSync})
	for _, j := range c.pipelineBuf {
		c.submitLocked(j)
	}
	c.pipelineBuf = nil
	c.submitLocked(job{
		kind: reqqueue.KindSync,
		ctx:  context.Background(),
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			return &driver.Result{}, nil
		},
	})
}

// SendFlush ships every buffered pipeline request without establishing a
// synchronization point.
func (c *Connection) SendFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.pipelineBuf {
		c.submitLocked(j)
	}
	c.pipelineBuf = nil
}

// ExecuteNIO binds stmt's parameters against args (interpreted positionally
// in the statement's parameter index order) and queues its execution. The
// result set is read whole before its Rows are delivered one at a time; it
// is not streamed in single-row mode.
func (c *Connection) ExecuteNIO(ctx context.Context, stmt Statement, args ...any) error {
	if err := c.requireNIOReady(); err != nil {
		return err
	}
	if stmt.HasMissingParameters() {
		return ErrMissingParameters
	}
	values, formats, err := bindArguments(stmt, args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	raw := c.raw
	rf := c.resultFormat
	c.mu.Unlock()

	sql := stmt.ToQueryString(quoteLiteralFunc(raw), quoteIdentFunc(raw))
	c.enqueue(job{
		kind: reqqueue.KindExecute,
		ctx:  ctx,
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			return raw.ExecParams(ctx, sql, values, formats, []int16{int16(rf)})
		},
	})
	return nil
}

// Execute is the blocking convenience form of ExecuteNIO followed by
// ProcessResponses, returning the terminal Completion.
func (c *Connection) Execute(ctx context.Context, stmt Statement, cb RowCallback, args ...any) (Completion, error) {
	if err := c.ExecuteNIO(ctx, stmt, args...); err != nil {
		return Completion{}, err
	}
	return c.ProcessResponses(cb)
}

// HasResponse reports whether a demultiplexed response is available
// without blocking.
func (c *Connection) HasResponse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// Completion returns the most recently processed terminal Completion.
func (c *Connection) Completion() (Completion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentCompletion == nil {
		return Completion{}, false
	}
	return *c.currentCompletion, true
}

// Error returns the most recent server error stashed by response
// handling, if any.
func (c *Connection) Error() (*ServerError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentError, c.currentError != nil
}

// WaitResponse blocks until HasResponse() or timeout elapses. timeout < 0
// means "use options.WaitResponseTimeout"; 0 means wait forever.
func (c *Connection) WaitResponse(timeout time.Duration) error {
	if timeout < 0 {
		timeout = c.options.WaitResponseTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if c.HasResponse() {
			return nil
		}
		handled, err := c.HandleInput(false)
		if err != nil {
			return err
		}
		if handled {
			continue
		}
		c.mu.Lock()
		idle := c.inflight == 0 && len(c.arrived) == 0
		c.mu.Unlock()
		if idle {
			return fmt.Errorf("%w: no request outstanding", ErrInvalidState)
		}
		if timeout > 0 && time.Now().After(deadline) {
			return ErrTimedOut
		}
		time.Sleep(time.Millisecond)
	}
}

// ProcessResponses waits for the next response, invokes cb for every row
// honoring its RowProcessingVerdict, then returns the terminal
// Completion. For a ReadyForQuery sync point it returns a Completion
// whose Operation is "SYNC".
func (c *Connection) ProcessResponses(cb RowCallback) (Completion, error) {
	if err := c.WaitResponse(-1); err != nil {
		return Completion{}, err
	}

	c.mu.Lock()
	resp := &c.pending[0]
	c.mu.Unlock()

	if resp.transportErr != nil {
		err := resp.transportErr
		c.popPending()
		return Completion{}, err
	}

	if resp.readyForQuery || resp.syntheticTag != "" {
		completion := NewSyntheticCompletion(resp.syntheticTag)
		c.popPending()
		c.stashCompletion(completion)
		return completion, nil
	}

	if resp.result.Err != nil {
		se := convertServerError(resp.result.Err)
		c.popPending()
		if c.errorHandler != nil && c.errorHandler(se) {
			return Completion{}, nil
		}
		return Completion{}, se
	}

	if cb != nil {
		for resp.rowCursor < len(resp.result.Rows) {
			row := resp.result.Rows[resp.rowCursor]
			values := make([]data.Data, len(row))
			for i, cell := range row {
				if cell == nil {
					values[i] = data.Null(data.Format(resp.rowInfo.Field(i).Format))
				} else {
					values[i] = data.NewBorrowed(cell, data.Format(resp.rowInfo.Field(i).Format))
				}
			}
			resp.rowCursor++
			switch cb(NewRow(resp.rowInfo, values)) {
			case RowProcessingSuspend:
				return Completion{}, fmt.Errorf("pgfe: row processing suspended")
			case RowProcessingComplete:
				resp.rowCursor = len(resp.result.Rows)
			}
		}
	}

	completion := NewCompletion(resp.result.CommandTag)
	c.popPending()
	c.stashCompletion(completion)
	return completion, nil
}

func (c *Connection) popPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.pending = c.pending[1:]
	}
}

func (c *Connection) stashCompletion(completion Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentCompletion = &completion
}

// ToQuotedLiteral quotes s as a SQL string literal per the current
// session encoding.
func (c *Connection) ToQuotedLiteral(s string) (string, error) {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return "", ErrInvalidState
	}
	return raw.EscapeLiteral(s)
}

// ToQuotedIdentifier quotes s as a SQL identifier per the current session
// encoding.
func (c *Connection) ToQuotedIdentifier(s string) (string, error) {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return "", ErrInvalidState
	}
	return raw.EscapeIdentifier(s)
}

func quoteLiteralFunc(raw driver.Conn) QuoteFunc {
	return func(v string) string {
		q, err := raw.EscapeLiteral(v)
		if err != nil {
			return "'" + v + "'"
		}
		return q
	}
}

func quoteIdentFunc(raw driver.Conn) QuoteFunc {
	return func(v string) string {
		q, err := raw.EscapeIdentifier(v)
		if err != nil {
			return `"` + v + `"`
		}
		return q
	}
}

func convertFieldDescriptors(fields []driver.FieldDescriptor) []FieldInfo {
	out := make([]FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = FieldInfo{
			Name:         f.Name,
			Format:       data.Format(f.Format),
			TypeOID:      f.TypeOID,
			TypeSize:     f.TypeSize,
			TypeModifier: f.TypeModifier,
			TableOID:     f.TableOID,
			TableColumn:  f.TableColumn,
		}
	}
	return out
}

func convertServerError(e *driver.ServerError) *ServerError {
	return &ServerError{
		Severity:         e.Severity,
		Code:             e.Code,
		Message:          e.Message,
		Detail:           e.Detail,
		Hint:             e.Hint,
		Position:         e.Position,
		InternalPosition: e.InternalPosition,
		InternalQuery:    e.InternalQuery,
		Where:            e.Where,
		SchemaName:       e.SchemaName,
		TableName:        e.TableName,
		ColumnName:       e.ColumnName,
		DataTypeName:     e.DataTypeName,
		ConstraintName:   e.ConstraintName,
		File:             e.File,
		Line:             e.Line,
		Routine:          e.Routine,
	}
}

// Notification is the pgfe-facing asynchronous NOTIFY delivery.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}

// CopyDirection is the direction an active Copier moves data.
type CopyDirection int

const (
	CopyDirectionIn CopyDirection = iota
	CopyDirectionOut
)

// IsCopyInProgress reports whether the connection is mid-COPY.
func (c *Connection) IsCopyInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCopyInProgress
}
