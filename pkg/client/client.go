// Package client is the caller-side facade of a testops MCP server: one
// method per tool, each returning the text of the tool's first content block.
//
//	c, err := client.Dial(ctx, "ws://localhost:3001")
//	if err != nil { ... }
//	defer c.Close()
//	text, err := c.StartMonitoring(ctx, "tests/login.spec.ts", nil)
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/transport"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// Defaults
const (
	DefaultDialRetries   = 5
	DefaultRetryInterval = 500 * time.Millisecond
)

type options struct {
	timeout       time.Duration
	logger        *slog.Logger
	header        http.Header
	dialRetries   int
	callRetries   int
	retryInterval time.Duration
}

// Option configures a Client
type Option func(*options)

// WithTimeout sets the per-call reply deadline
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the client's logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHeader adds HTTP headers to the websocket handshake
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithDialRetries bounds the connection attempts Dial makes
func WithDialRetries(n int) Option {
	return func(o *options) { o.dialRetries = n }
}

// WithCallRetries retries a tool call up to n more times when it times out.
// Errors reported by the server are never retried.
func WithCallRetries(n int) Option {
	return func(o *options) { o.callRetries = n }
}

// WithRetryInterval sets the first delay of the exponential retry schedule
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}

func buildOptions(opts []Option) *options {
	o := &options{
		timeout:       transport.DefaultCallTimeout,
		dialRetries:   DefaultDialRetries,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.dialRetries < 1 {
		o.dialRetries = 1
	}
	return o
}

func (o *options) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryInterval
	b.MaxInterval = 20 * o.retryInterval
	b.Reset()
	return b
}

// Client calls the tools of one server connection. It is safe for
// concurrent use.
type Client struct {
	caller *transport.Caller
	opts   *options
	logger *slog.Logger
}

// Dial connects to the websocket server at url, retrying failed attempts
// with exponential backoff
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	logger := logging.Component(o.logger, "client")

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*transport.WebSocketConn, error) {
		attempt++
		conn, err := transport.DialWebSocket(ctx, url, o.header)
		if err != nil {
			logger.Warn("failed to connect to MCP server", "url", url, "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(o.backOff()),
		backoff.WithMaxTries(uint(o.dialRetries)), // #nosec G115 -- clamped to >= 1
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempt(s): %w", url, attempt, err)
	}

	logger.Info("connected to MCP server", "url", url)
	return newClient(conn, o), nil
}

// New wraps an established connection, e.g. a stdio pipe pair
func New(conn transport.Conn, opts ...Option) *Client {
	return newClient(conn, buildOptions(opts))
}

func newClient(conn transport.Conn, o *options) *Client {
	return &Client{
		caller: transport.NewCaller(conn, transport.WithTimeout(o.timeout), transport.WithLogger(o.logger)),
		opts:   o,
		logger: logging.Component(o.logger, "client"),
	}
}

// Close disconnects and fails every outstanding call
func (c *Client) Close() error {
	return c.caller.Close()
}

// Done is closed when the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.caller.Done()
}

// CallTool calls any tool and returns its result
func (c *Client) CallTool(ctx context.Context, name string, arguments interface{}) (*types.ToolResult, error) {
	if c.opts.callRetries <= 0 {
		return c.caller.CallTool(ctx, name, arguments)
	}

	return backoff.Retry(ctx, func() (*types.ToolResult, error) {
		result, err := c.caller.CallTool(ctx, name, arguments)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errors.CodeTransportTimeout) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("tool call timed out, retrying", "tool", name)
		return nil, err
	},
		backoff.WithBackOff(c.opts.backOff()),
		backoff.WithMaxTries(uint(c.opts.callRetries+1)), // #nosec G115 -- positive by the check above
	)
}

// callText calls a tool and returns the text of its first content block, or
// fallback when the result has no text
func (c *Client) callText(ctx context.Context, name, fallback string, arguments interface{}) (string, error) {
	result, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		c.logger.Error("tool call failed", "tool", name, "error", err)
		return "", err
	}
	if text := result.Text(); text != "" {
		return text, nil
	}
	return fallback, nil
}

// ReadResource returns the text of a server resource
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	raw, err := c.caller.Call(ctx, "resources/read", map[string]string{"uri": uri})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, "contents.0.text").String(), nil
}

// ListTools returns the names of the server's tools
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	raw, err := c.caller.Call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range gjson.GetBytes(raw, "tools.#.name").Array() {
		names = append(names, name.String())
	}
	return names, nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.caller.Call(ctx, "ping", nil)
	return err
}
