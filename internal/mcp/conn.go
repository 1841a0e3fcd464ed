package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	toolerrors "github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/transport"
	"github.com/ctagard/testops-mcp/pkg/types"
)

const (
	methodResourcesRead = "resources/read"
	shutdownTimeout     = 5 * time.Second
)

// rpcRequest is an inbound envelope. ID stays raw so that it is echoed
// exactly as the caller sent it.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Result  *types.ToolResult `json:"result,omitempty"`
	Error   *types.RPCError   `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// ServeConn answers requests read from conn until it is closed or ctx is
// done. Every request runs on its own goroutine; requests that share an
// ordering key start in arrival order and never overlap.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	serial := newKeyedSerializer()
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return err
		}

		var wait <-chan struct{}
		release := func() {}
		if key := orderingKey(data); key != "" {
			wait, release = serial.enqueue(key)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()
			if wait != nil {
				select {
				case <-wait:
				case <-ctx.Done():
					return
				}
			}
			if reply := s.HandleMessage(ctx, data); reply != nil {
				if err := conn.WriteMessage(reply); err != nil {
					s.logger.Debug("failed to write response", "error", err)
				}
			}
		}()
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// HandleMessage answers one envelope. It returns nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, data []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return s.encode(rpcResponse{ID: nullID, Error: &types.RPCError{
			Code: types.CodeParseError, Message: "Parse error",
		}})
	}
	if len(req.ID) == 0 {
		req.ID = nil
	}

	switch req.Method {
	case "":
		return s.encode(rpcResponse{ID: idOrNull(req.ID), Error: &types.RPCError{
			Code: types.CodeInvalidRequest, Message: "Invalid Request",
		}})

	case types.MethodToolsCall:
		name := gjson.GetBytes(req.Params, "name").String()
		args := json.RawMessage(gjson.GetBytes(req.Params, "arguments").Raw)
		s.logger.Info("tool called", "tool", name)

		result, rpcErr := s.registry.Dispatch(ctx, name, args)
		if req.ID == nil {
			return nil
		}
		return s.encode(rpcResponse{ID: req.ID, Result: result, Error: rpcErr})

	case methodResourcesRead:
		uri := gjson.GetBytes(req.Params, "uri").String()
		if !isKnownResource(uri) {
			if req.ID == nil {
				return nil
			}
			return s.encode(rpcResponse{ID: req.ID, Error: toolerrors.UnknownResource(uri).ToRPC()})
		}
	}

	reply := s.mcpServer.HandleMessage(ctx, data)
	if reply == nil {
		return nil
	}
	out, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to marshal response", "method", req.Method, "error", err)
		return nil
	}
	return out
}

func (s *Server) encode(resp rpcResponse) []byte {
	resp.JSONRPC = types.JSONRPCVersion
	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return nil
	}
	return out
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if id == nil {
		return nullID
	}
	return id
}

// orderingKey names the state a tool call touches. Calls with the same key
// are serialized; an empty key means no ordering constraint.
func orderingKey(data []byte) string {
	if gjson.GetBytes(data, "method").String() != types.MethodToolsCall {
		return ""
	}
	switch gjson.GetBytes(data, "params.name").String() {
	case ToolMonitorTestExecution:
		return "monitor:" + gjson.GetBytes(data, "params.arguments.testFile").String()
	case ToolManageTestData, ToolManageEnvironment:
		return "data"
	case ToolSetupAlerts, ToolCheckAlerts:
		return "alerts"
	}
	return ""
}

// keyedSerializer hands out per-key turns in the order enqueue is called
type keyedSerializer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyedSerializer() *keyedSerializer {
	return &keyedSerializer{tails: make(map[string]chan struct{})}
}

// enqueue returns a channel that is closed when the previous holder of key
// is done, and the release func of this turn
func (k *keyedSerializer) enqueue(key string) (<-chan struct{}, func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	prev := k.tails[key]
	done := make(chan struct{})
	k.tails[key] = done

	release := func() {
		k.mu.Lock()
		if k.tails[key] == done {
			delete(k.tails, key)
		}
		k.mu.Unlock()
		close(done)
	}
	if prev == nil {
		ready := make(chan struct{})
		close(ready)
		return ready, release
	}
	return prev, release
}

// WebSocketHandler upgrades HTTP requests and serves the connection
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		logger := s.logger.With("conn", uuid.NewString(), "remote", r.RemoteAddr)
		logger.Info("client connected")
		if err := s.ServeConn(r.Context(), transport.NewWebSocketConn(ws)); err != nil {
			logger.Warn("connection ended with error", "error", err)
		}
		logger.Info("client disconnected")
	})
}

// ServeStdio serves newline-delimited envelopes on stdin/stdout
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.ServeLines(ctx, os.Stdin, os.Stdout)
}

// ServeLines serves newline-delimited envelopes read from r, replying on w
func (s *Server) ServeLines(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.ServeConn(ctx, transport.NewLineConn(r, w))
}

// Handler returns the HTTP surface: websocket on /, metrics on /metrics
// (when enabled) and a liveness check on /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.WebSocketHandler())
	if s.config.MetricsEnabled {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx is
// done
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves the HTTP surface on l. When ctx is done the server stops
// accepting, closes open connections and returns nil.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "address", l.Addr().String())
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
