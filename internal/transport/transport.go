// Package transport implements the duplex message channels that carry
// tool-call envelopes, and the Caller that correlates replies with calls.
//
// This package provides:
//   - Conn: one JSON envelope per message, over a websocket or a
//     newline-delimited stream (stdio)
//   - Caller: id allocation, the pending-call table, per-call deadline and
//     rejection of every pending call on disconnect
//
// There is no retry here; retry policy belongs to the caller of Caller.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxLineSize bounds a single newline-delimited envelope
const maxLineSize = 10 * 1024 * 1024

// Conn is a duplex channel of whole messages. ReadMessage is called from a
// single goroutine; WriteMessage may be called concurrently.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// WebSocketConn adapts a gorilla websocket connection to Conn
type WebSocketConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewWebSocketConn wraps an established websocket connection
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// DialWebSocket connects to a websocket endpoint
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocketConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return NewWebSocketConn(ws), nil
}

// ReadMessage reads the next text or binary frame
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMessage sends data as one text frame
func (c *WebSocketConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame (best effort) and closes the socket
func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// LineConn carries one envelope per line over a reader/writer pair, the
// framing MCP uses on stdio
type LineConn struct {
	scanner *bufio.Scanner
	writer  io.Writer
	closers []io.Closer
	mu      sync.Mutex
}

// NewLineConn creates a line-oriented Conn. r and w are closed by Close when
// they implement io.Closer.
func NewLineConn(r io.Reader, w io.Writer) *LineConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	c := &LineConn{scanner: scanner, writer: w}
	if rc, ok := r.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	if wc, ok := w.(io.Closer); ok {
		c.closers = append(c.closers, wc)
	}
	return c
}

// ReadMessage returns the next non-empty line. It returns io.EOF at end of input.
func (c *LineConn) ReadMessage() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		return msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line: %w", err)
	}
	return nil, io.EOF
}

// WriteMessage writes data followed by a newline
func (c *LineConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := c.writer.Write(buf); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	return nil
}

// Close closes the underlying reader and writer
func (c *LineConn) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
