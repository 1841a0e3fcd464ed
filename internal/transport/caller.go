package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// DefaultCallTimeout is how long a call waits for its reply
const DefaultCallTimeout = 30 * time.Second

// outcome settles exactly one pending call
type outcome struct {
	resp *types.ResponseEnvelope
	err  error
}

// Caller issues calls over a Conn and routes each reply to the call with the
// matching id. Replies may arrive in any order.
type Caller struct {
	conn    Conn
	timeout time.Duration
	logger  *slog.Logger

	nextID atomic.Int64

	// Pending calls, keyed by id
	pending map[int64]chan outcome
	closed  bool
	mu      sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// CallerOption configures a Caller
type CallerOption func(*Caller)

// WithTimeout sets the per-call reply deadline
func WithTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for dropped and malformed replies
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCaller starts reading replies from conn
func NewCaller(conn Conn, opts ...CallerOption) *Caller {
	c := &Caller{
		conn:    conn,
		timeout: DefaultCallTimeout,
		logger:  logging.Nop(),
		pending: make(map[int64]chan outcome),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "transport")

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Done is closed once the connection is gone and every pending call has been
// rejected
func (c *Caller) Done() <-chan struct{} {
	return c.done
}

// Pending returns the number of calls awaiting a reply
func (c *Caller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close closes the connection and rejects every pending call
func (c *Caller) Close() error {
	c.rejectAll(errors.TransportClosed(nil))
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// CallTool sends a tools/call envelope and decodes the tool result
func (c *Caller) CallTool(ctx context.Context, name string, arguments interface{}) (*types.ToolResult, error) {
	var args json.RawMessage
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments for %s: %w", name, err)
		}
		args = raw
	}

	raw, err := c.call(ctx, types.MethodToolsCall, name, types.ToolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}

	var result types.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result of %s: %w", name, err)
	}
	return &result, nil
}

// Call sends any request and returns the raw result member of its reply
func (c *Caller) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, method, method, params)
}

// call registers the pending record before sending so a fast reply cannot
// race the registration. label names the call in timeout errors.
func (c *Caller) call(ctx context.Context, method, label string, params interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	env, err := types.NewCallEnvelope(id, method, params)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", method, err)
	}

	ch := make(chan outcome, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.TransportClosed(nil)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.WriteMessage(data); err != nil {
		c.forget(id)
		return nil, errors.TransportSendFailed(method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.resp.Error != nil {
			return nil, errors.RemoteError(out.resp.Error)
		}
		return out.resp.Result, nil
	case <-timer.C:
		c.forget(id)
		return nil, errors.TransportTimeout(label, c.timeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Caller) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop routes replies until the connection fails. Unlike a byte stream
// with recoverable framing, a failed websocket read is terminal.
func (c *Caller) readLoop() {
	defer c.wg.Done()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			c.rejectAll(errors.TransportClosed(err))
			return
		}
		c.handleMessage(data)
	}
}

func (c *Caller) handleMessage(data []byte) {
	var resp types.ResponseEnvelope
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("dropping malformed reply", "error", err)
		return
	}
	if resp.ID == nil {
		c.logger.Debug("dropping reply without id")
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	if ok {
		delete(c.pending, *resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		// Late reply to a call that already timed out, or an id we never sent
		c.logger.Debug("dropping reply with no pending call", "id", *resp.ID)
		return
	}
	ch <- outcome{resp: &resp}
}

// rejectAll settles every pending call with err and refuses new calls
func (c *Caller) rejectAll(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan outcome)
	c.mu.Unlock()

	for id, ch := range pending {
		c.logger.Debug("rejecting pending call", "id", id, "error", err)
		ch <- outcome{err: err}
	}
	close(c.done)
}
