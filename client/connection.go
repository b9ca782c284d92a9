// Package client implements the connection state machine of spec.md §4.4
// and §4.5: it owns the transport, frames commands through package resp,
// multiplexes concurrent requests over one duplex byte stream, and
// matches replies to requests in strict FIFO order with per-command
// timeouts, pipelining, liveness checks, and graceful/forced teardown.
//
// Grounded on netconf/client/message.go's sesImpl (single-owner
// enqueue-then-write discipline, receive-loop-drives-dispatch) and
// generalized to the explicit Disconnected/Connecting/Connected/Error
// state machine spec.md §4.5 describes, which the teacher's NETCONF
// session does not need.
package client

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/damianoneill/respwire/resp"
)

// EventKind identifies the shape of an Event delivered on a Connection's
// event channel (spec.md §6 "An event channel emitting: status(new_state),
// close(had_error), error(err), message(frame)").
type EventKind int

const (
	EventStatus EventKind = iota
	EventClose
	EventError
	EventMessage
)

// Event is one item delivered on Connection.Events().
type Event struct {
	Kind     EventKind
	Status   Status
	HadError bool
	Err      error
	Frame    resp.Frame
}

// Result is the outcome of Execute/Pipeline: the surface the
// command-shortcut helpers in commands.go are built over (spec.md §4.4).
type Result struct {
	Success    bool
	Data       interface{}
	Err        error
	DurationMS int64
}

// Connection multiplexes commands over a single duplex byte stream. The
// zero Connection is not usable; construct one with New, Dial, or
// DialWithConfig.
type Connection struct {
	id   string
	addr string
	cfg  *Config

	mu        sync.Mutex
	status    Status
	trace     *ClientTrace
	transport Transport
	parser    *resp.Parser
	queue     *pendingQueue
	stopPing  chan struct{}
	torndown  *sync.Once

	// disconnecting is set by Disconnect before it half-closes the
	// transport, so receiveLoop can tell a graceful FIN-driven EOF
	// apart from an unexpected transport failure and report the
	// resulting close without HadError/EventError (spec.md §4.4
	// "disconnect()" vs. transport failure, §7).
	disconnecting atomic.Bool

	// writeMu serializes the (enqueue waiter(s), write command bytes)
	// critical section across concurrent Send/Pipeline callers, so
	// enqueue order never disagrees with wire order (spec.md §4.4
	// "Pipelining and ordering guarantee", §5).
	writeMu sync.Mutex
	// connectMu serializes Connect so idempotency checks and the
	// connecting->connected/error transition are themselves atomic.
	connectMu sync.Mutex

	events chan Event
	wg     sync.WaitGroup
}

// New constructs a Connection in the Disconnected state. cfg may be nil
// or partially populated; unset fields are filled from DefaultConfig.
func New(addr string, cfg *Config) *Connection {
	merged := &Config{}
	if cfg != nil {
		*merged = *cfg
	}
	_ = mergo.Merge(merged, DefaultConfig)

	return &Connection{
		id:     uuid.NewString(),
		addr:   addr,
		cfg:    merged,
		trace:  NoOpLoggingHooks,
		status: Disconnected,
		events: make(chan Event, 256),
	}
}

// Dial constructs a Connection with default configuration and connects
// it.
func Dial(ctx context.Context, addr string) (*Connection, error) {
	return DialWithConfig(ctx, addr, nil)
}

// DialWithConfig constructs a Connection with the given configuration
// and connects it.
func DialWithConfig(ctx context.Context, addr string, cfg *Config) (*Connection, error) {
	c := New(addr, cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the connection's trace identifier.
func (c *Connection) ID() string { return c.id }

// Status reports the current observable state (spec.md §4.5).
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Events returns the channel on which status/close/error/unsolicited-
// message events are delivered (spec.md §6). A slow consumer causes
// events to be dropped rather than stalling the connection's single
// owner, mirroring the teacher's notification-drop behaviour for a full
// subscription channel.
func (c *Connection) Events() <-chan Event { return c.events }

func (c *Connection) emitEvent(e Event) {
	select {
	case c.events <- e:
	default:
	}
}

func (c *Connection) transitionTo(next Status) Status {
	c.mu.Lock()
	prev := c.status
	c.status = next
	c.mu.Unlock()
	if prev != next {
		c.trace.StatusChanged(c.id, prev, next)
		c.emitEvent(Event{Kind: EventStatus, Status: next})
	}
	return prev
}

// Connect opens the transport and, on success, performs optional
// AUTH/SELECT bootstrap (spec.md §4.4). It is idempotent when already
// Connected, and resets a terminal Error state back to Connecting, per
// spec.md §4.5.
func (c *Connection) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.Status() == Connected {
		return nil
	}

	c.trace = ContextClientTrace(ctx)
	c.transitionTo(Connecting)

	connectCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.ConnectTimeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	c.trace.ConnectStart(c.id, c.addr)
	start := time.Now()
	transport, err := dialTransport(connectCtx, c.addr, c.cfg.ConnectTimeout, c.cfg.TLS)
	c.trace.ConnectDone(c.id, c.addr, err, time.Since(start))
	if err != nil {
		c.transitionTo(Error)
		c.trace.Error(c.id, "connect", err)
		c.emitEvent(Event{Kind: EventError, Err: err})
		return err
	}
	transport = newTraceReadWriter(transport, c.id, c.trace)

	c.mu.Lock()
	c.transport = transport
	c.parser = resp.NewParserSize(c.cfg.InitialParserBufferSize)
	c.queue = newPendingQueue(c.cfg.PendingQueueCompactionThreshold)
	c.stopPing = make(chan struct{})
	c.torndown = &sync.Once{}
	c.mu.Unlock()
	c.disconnecting.Store(false)

	c.wg.Add(1)
	go c.receiveLoop(transport, c.parser)

	// AUTH/SELECT are bootstrap commands issued while still Connecting.
	// spec.md §9 "Open question — auth during connecting": these go
	// through privilegedSend, an internal path that does not require
	// the Connected state the public Send enforces.
	if c.cfg.Password != "" {
		if _, err := c.privilegedSend(connectCtx, resp.ArgStrings("AUTH", c.cfg.Password)); err != nil {
			return c.failConnect(errors.Wrap(err, "AUTH failed"))
		}
	}
	if c.cfg.Database != nil {
		if _, err := c.privilegedSend(connectCtx, resp.ArgStrings("SELECT", strconv.Itoa(*c.cfg.Database))); err != nil {
			return c.failConnect(errors.Wrap(err, "SELECT failed"))
		}
	}

	c.transitionTo(Connected)

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.livenessLoop(c.stopPing)
	}
	return nil
}

func (c *Connection) failConnect(err error) error {
	c.teardown(Error, errConnectionClosed, err)
	c.wg.Wait()
	return err
}

// privilegedSend is the internal bootstrap path used only by Connect for
// AUTH/SELECT; it requires Connecting rather than Connected.
func (c *Connection) privilegedSend(ctx context.Context, args []resp.Argument) (resp.Frame, error) {
	return c.sendInternal(ctx, args, Connecting)
}

// Send serializes args, enqueues a waiter, writes the command, and
// blocks for the matching reply (spec.md §4.4 "send(args)").
func (c *Connection) Send(ctx context.Context, args []resp.Argument) (resp.Frame, error) {
	return c.sendInternal(ctx, args, Connected)
}

func (c *Connection) sendInternal(ctx context.Context, args []resp.Argument, required Status) (resp.Frame, error) {
	c.mu.Lock()
	status := c.status
	transport := c.transport
	queue := c.queue
	c.mu.Unlock()

	if status != required {
		return resp.Frame{}, errNotConnected
	}

	buf, err := resp.Serialize(args...)
	if err != nil {
		return resp.Frame{}, err
	}

	w := newWaiter()
	w.armTimer(c.commandTimeout(ctx))

	c.trace.CommandStart(c.id, len(args))
	start := time.Now()

	c.writeMu.Lock()
	queue.push(w)
	_, werr := transport.Write(buf)
	if werr != nil {
		queue.popBack()
	}
	c.writeMu.Unlock()

	if werr != nil {
		w.cancel(werr)
		c.trace.CommandDone(c.id, len(args), werr, time.Since(start))
		c.teardown(Disconnected, errConnectionClosed, werr)
		return resp.Frame{}, werr
	}

	frame, err := w.waitCtx(ctx)
	c.trace.CommandDone(c.id, len(args), err, time.Since(start))
	return frame, err
}

func (c *Connection) commandTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return c.cfg.CommandTimeout
}

// Pipeline serializes every command to one contiguous buffer, enqueues
// that many waiters in order, issues a single write, and collects each
// command's result independently (spec.md §4.4 "pipeline(cmds)").
func (c *Connection) Pipeline(ctx context.Context, cmds [][]resp.Argument) ([]Result, error) {
	c.mu.Lock()
	status := c.status
	transport := c.transport
	queue := c.queue
	c.mu.Unlock()

	if status != Connected {
		return nil, errNotConnected
	}
	if len(cmds) == 0 {
		return nil, nil
	}

	var buf []byte
	waiters := make([]*waiter, len(cmds))
	timeout := c.commandTimeout(ctx)
	for i, args := range cmds {
		var err error
		buf, err = resp.AppendCommand(buf, args...)
		if err != nil {
			return nil, err
		}
		waiters[i] = newWaiter()
		waiters[i].armTimer(timeout)
	}

	c.writeMu.Lock()
	for _, w := range waiters {
		queue.push(w)
	}
	_, werr := transport.Write(buf)
	if werr != nil {
		for range waiters {
			queue.popBack()
		}
	}
	c.writeMu.Unlock()

	if werr != nil {
		for _, w := range waiters {
			w.cancel(werr)
		}
		c.teardown(Disconnected, errConnectionClosed, werr)
		return nil, werr
	}

	results := make([]Result, len(waiters))
	for i, w := range waiters {
		start := time.Now()
		frame, err := w.waitCtx(ctx)
		results[i] = toResult(frame, err, start)
	}
	return results, nil
}

// Execute converts a Send outcome into a Result record (spec.md §4.4
// "execute(args_or_string)"); it is the surface over which the
// command-shortcut helpers in commands.go are built.
func (c *Connection) Execute(ctx context.Context, args []resp.Argument) Result {
	start := time.Now()
	frame, err := c.Send(ctx, args)
	return toResult(frame, err, start)
}

func toResult(frame resp.Frame, err error, start time.Time) Result {
	d := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Success: false, Err: err, DurationMS: d}
	}
	value, verr := frame.ToValue()
	if verr != nil {
		return Result{Success: false, Err: verr, DurationMS: d}
	}
	return Result{Success: true, Data: value, DurationMS: d}
}

// Disconnect gracefully tears the connection down: rejects all pending
// waiters with "client disconnecting", then half-closes the transport's
// write side when supported (best-effort FIN) and lets receiveLoop's own
// read observe the resulting close, rather than forcing the transport
// closed itself (spec.md §4.4 "disconnect() ... resolves when the remote
// half-close is observed"). If the transport offers no half-close, or
// CloseWrite itself fails, there is nothing for receiveLoop to wait on,
// so it falls back to the same forced teardown Destroy uses.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	transport := c.transport
	queue := c.queue
	status := c.status
	c.mu.Unlock()

	if status == Disconnected {
		return nil
	}

	c.disconnecting.Store(true)

	if queue != nil {
		queue.rejectAll(errDisconnecting)
	}

	if transport != nil {
		if cw, ok := transport.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err == nil {
				c.wg.Wait()
				return nil
			}
		}
	}

	c.teardown(Disconnected, errDisconnecting, nil)
	c.wg.Wait()
	return nil
}

// Destroy forcibly tears the connection down: rejects all pending
// waiters with "client destroyed" and aborts the transport immediately
// (spec.md §4.4 "destroy()").
func (c *Connection) Destroy() {
	c.teardown(Disconnected, errDestroyed, nil)
	c.wg.Wait()
}

// teardown is the single path by which a connection generation is torn
// down, whether by graceful Disconnect, forced Destroy, a transport
// failure observed by the receive loop or a Send/Pipeline write, a
// liveness-ping failure, or a wire-format parse error. It is idempotent
// per connection generation via torndown.
func (c *Connection) teardown(next Status, waiterErr error, observedErr error) {
	c.mu.Lock()
	once := c.torndown
	c.mu.Unlock()
	if once == nil {
		// Connect never got far enough to create a transport/queue for
		// this generation; nothing to tear down but the status itself.
		c.transitionTo(next)
		return
	}

	once.Do(func() {
		c.mu.Lock()
		transport := c.transport
		parser := c.parser
		queue := c.queue
		stopPing := c.stopPing
		c.mu.Unlock()

		if stopPing != nil {
			close(stopPing)
		}
		if transport != nil {
			_ = transport.Close()
		}
		if queue != nil {
			queue.rejectAll(waiterErr)
		}
		if parser != nil {
			// Discards any partially consumed frame: position in the
			// byte stream is unrecoverable once torn down (spec.md §9
			// "parse-error recovery", §4.5).
			parser.Reset()
		}

		c.transitionTo(next)
		hadErr := observedErr != nil
		c.emitEvent(Event{Kind: EventClose, HadError: hadErr})
		if observedErr != nil {
			c.trace.Error(c.id, "transport", observedErr)
			c.emitEvent(Event{Kind: EventError, Err: observedErr})
		}
	})
}

// receiveLoop is the reply-side data flow of spec.md §2: socket read ->
// parser.Append -> drain loop matching each frame to the pending queue
// head, or surfacing it as an unsolicited event.
func (c *Connection) receiveLoop(transport Transport, parser *resp.Parser) {
	defer c.wg.Done()

	readBuf := make([]byte, 32*1024)
	for {
		n, err := transport.Read(readBuf)
		if n > 0 {
			parser.Append(readBuf[:n])
			if fatal := c.drain(parser); fatal {
				return
			}
		}
		if err != nil {
			if c.disconnecting.Load() {
				// This EOF is the remote half-close Disconnect is
				// waiting on, not a failure.
				c.teardown(Disconnected, errDisconnecting, nil)
			} else {
				c.teardown(Disconnected, errConnectionClosed, err)
			}
			return
		}
	}
}

// drain repeatedly tries to parse a frame and dispatch it, returning
// true if a wire-format error tore the connection down.
func (c *Connection) drain(parser *resp.Parser) bool {
	for {
		frame, ok, err := parser.TryParse()
		if err != nil {
			c.teardown(Disconnected, errConnectionClosed, err)
			return true
		}
		if !ok {
			return false
		}
		c.dispatch(frame)
	}
}

// dispatch matches one frame to the head of the pending queue, or
// surfaces it as an unsolicited event if the queue is empty (spec.md
// §4.4 receive-loop steps 1-3).
func (c *Connection) dispatch(frame resp.Frame) {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()

	if w := queue.next(); w != nil {
		w.deliver(frame)
		return
	}
	c.trace.MessageReceived(c.id, frame)
	c.emitEvent(Event{Kind: EventMessage, Frame: frame})
}

// livenessLoop issues a periodic PING while Connected; failure of either
// the send or the reply (including timeout) drives the connection into
// Disconnected and tears down the transport (spec.md §4.4 "Liveness").
func (c *Connection) livenessLoop(stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
			_, err := c.Send(ctx, resp.ArgStrings("PING"))
			cancel()
			c.trace.PingDone(c.id, err, time.Since(start))
			if err != nil {
				c.teardown(Disconnected, errConnectionClosed, err)
				return
			}
		}
	}
}

// traceReadWriter wraps a Transport with the trace hooks of
// traceReader/traceWriter while preserving Close and any CloseWrite the
// underlying transport offers.
type traceReadWriter struct {
	Transport
	reader *traceReader
	writer *traceWriter
}

func newTraceReadWriter(transport Transport, connID string, trace *ClientTrace) *traceReadWriter {
	return &traceReadWriter{
		Transport: transport,
		reader:    &traceReader{r: transport, connID: connID, trace: trace},
		writer:    &traceWriter{w: transport, connID: connID, trace: trace},
	}
}

func (t *traceReadWriter) Read(p []byte) (int, error)  { return t.reader.Read(p) }
func (t *traceReadWriter) Write(p []byte) (int, error) { return t.writer.Write(p) }

func (t *traceReadWriter) CloseWrite() error {
	if cw, ok := t.Transport.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return t.Transport.Close()
}
