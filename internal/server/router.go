package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/reqcontext"
)

// HeaderSessionID carries the session id on every MCP request after
// initialize.
const HeaderSessionID = "Mcp-Session-Id"

const (
	maxBodyBytes      = 4 << 20
	streamKeepAlive   = 30 * time.Second
	minSweepInterval  = time.Second
	maxSweepInterval  = time.Minute
	codeBadRequest    = -32000
	codeInternalError = -32603

	msgNoValidSession = "Bad Request: No valid session ID provided"
	msgInvalidSession = "Invalid or missing session ID"
	msgInternal       = "Internal server error"
)

// Close reasons, used as the metrics label.
const (
	ReasonClient     = "client"
	ReasonIdle       = "idle"
	ReasonShutdown   = "shutdown"
	ReasonInitFailed = "init_failed"
)

var ErrRouterClosed = errors.New("router closed")

// RouterDeps wires a Router. Metrics may be nil.
type RouterDeps struct {
	MCP         *mcpserver.MCPServer
	Credentials *credentials.Store
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *observability.MetricsManager
}

// Router owns the session id -> session table and routes every /mcp
// request to its session. Sessions move UNATTRIBUTED -> ACTIVE -> CLOSED:
// only an initialize without a session id creates one.
type Router struct {
	mcp         *mcpserver.MCPServer
	creds       *credentials.Store
	sessions    *SessionStore
	idleTimeout time.Duration
	keepAlive   time.Duration
	logger      *zap.Logger
	metrics     *observability.MetricsManager
	now         func() time.Time

	closed   atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRouter(d RouterDeps) *Router {
	return &Router{
		mcp:         d.MCP,
		creds:       d.Credentials,
		sessions:    NewSessionStore(),
		idleTimeout: d.IdleTimeout,
		keepAlive:   streamKeepAlive,
		logger:      d.Logger.Named("router"),
		metrics:     d.Metrics,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// Sessions exposes the live session table.
func (r *Router) Sessions() *SessionStore { return r.sessions }

// Known reports whether id names a live session.
func (r *Router) Known(id string) bool {
	if id == "" {
		return false
	}
	_, ok := r.sessions.get(id)
	return ok
}

// Check fails once the router has shut down.
func (r *Router) Check(context.Context) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	return nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.handlePost(w, req)
	case http.MethodGet:
		r.handleStream(w, req)
	case http.MethodDelete:
		r.handleDelete(w, req)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// envelope is the part of a JSON-RPC message the router needs.
type envelope struct {
	Method string          `json:"method"`
	ID     json.RawMessage `json:"id"`
}

func (e envelope) hasID() bool {
	return len(e.ID) > 0 && !bytes.Equal(e.ID, []byte("null"))
}

// parseEnvelope rejects batches and malformed JSON.
func parseEnvelope(body []byte) (envelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

func (r *Router) handlePost(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, codeBadRequest, msgNoValidSession, nil)
		return
	}
	env, parsed := parseEnvelope(body)
	sid := req.Header.Get(HeaderSessionID)

	var (
		sess    *session
		created bool
	)
	switch {
	case sid == "" && parsed && env.Method == string(mcp.MethodInitialize):
		sess, err = r.open(req.Context())
		if err != nil {
			r.logger.Error("Failed to open session", zap.Error(err))
			writeRPCError(w, http.StatusInternalServerError, codeInternalError, msgInternal, env.ID)
			return
		}
		created = true
	case sid != "":
		var ok bool
		if sess, ok = r.sessions.get(sid); !ok {
			r.logger.Debug("Rejected message for unknown session", zap.String("session_id", sid))
			writeRPCError(w, http.StatusBadRequest, codeBadRequest, msgNoValidSession, nil)
			return
		}
	default:
		writeRPCError(w, http.StatusBadRequest, codeBadRequest, msgNoValidSession, nil)
		return
	}

	r.dispatch(w, req, sess, body, env, created)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request, sess *session, body []byte, env envelope, created bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic while handling MCP message",
				zap.String("session_id", sess.id),
				zap.String("method", env.Method),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			if created {
				r.Close(context.WithoutCancel(req.Context()), sess.id, ReasonInitFailed)
			}
			writeRPCError(w, http.StatusInternalServerError, codeInternalError, msgInternal, env.ID)
		}
	}()

	resp := r.deliver(req.Context(), sess, body)
	sess.touch(r.now())

	if created {
		if _, failed := resp.(mcp.JSONRPCError); failed {
			r.Close(context.WithoutCancel(req.Context()), sess.id, ReasonInitFailed)
			writeJSON(w, http.StatusOK, "", resp)
			return
		}
	}
	if resp == nil {
		w.Header().Set(HeaderSessionID, sess.id)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("Failed to encode MCP response", zap.String("session_id", sess.id), zap.Error(err))
		writeRPCError(w, http.StatusInternalServerError, codeInternalError, msgInternal, env.ID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderSessionID, sess.id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// deliver hands one message to the MCP server under the session's ordering
// lock.
func (r *Router) deliver(ctx context.Context, sess *session, body []byte) mcp.JSONRPCMessage {
	sess.deliver.Lock()
	defer sess.deliver.Unlock()

	ctx = reqcontext.WithSessionID(ctx, sess.id)
	ctx = reqcontext.WithSource(ctx, reqcontext.SourceMCP)
	ctx = r.mcp.WithContext(ctx, sess)
	return r.mcp.HandleMessage(ctx, body)
}

func (r *Router) open(ctx context.Context) (*session, error) {
	if r.closed.Load() {
		return nil, ErrRouterClosed
	}
	sess := newSession(reqcontext.NewSessionID(), r.now())
	if err := r.mcp.RegisterSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	if !r.sessions.add(sess) {
		r.mcp.UnregisterSession(ctx, sess.id)
		return nil, fmt.Errorf("session id collision: %s", sess.id)
	}
	if r.closed.Load() {
		r.Close(ctx, sess.id, ReasonShutdown)
		return nil, ErrRouterClosed
	}
	r.metrics.SessionOpened()
	r.logger.Info("Session opened", zap.String("session_id", sess.id))
	return sess, nil
}

// Close ends a session: it drops the mapping, unregisters it from the MCP
// server and forgets its credentials. It reports false for unknown ids.
func (r *Router) Close(ctx context.Context, id, reason string) bool {
	sess, ok := r.sessions.remove(id)
	if !ok {
		return false
	}
	sess.close()
	r.mcp.UnregisterSession(ctx, id)
	if err := r.creds.Forget(ctx, id); err != nil {
		r.logger.Warn("Failed to forget session credentials", zap.String("session_id", id), zap.Error(err))
	}
	r.metrics.SessionClosed(reason)
	r.logger.Info("Session closed", zap.String("session_id", id), zap.String("reason", reason))
	return true
}

func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.sessions.get(req.Header.Get(HeaderSessionID))
	if !ok {
		http.Error(w, msgInvalidSession, http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	if !sess.streaming.CompareAndSwap(false, true) {
		http.Error(w, "Session already has an open stream", http.StatusConflict)
		return
	}
	defer sess.streaming.Store(false)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(HeaderSessionID, sess.id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-sess.done:
			return
		case n := <-sess.notifications:
			data, err := json.Marshal(n)
			if err != nil {
				r.logger.Warn("Dropping unencodable notification", zap.String("session_id", sess.id), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			sess.touch(r.now())
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			sess.touch(r.now())
		}
	}
}

func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) {
	sid := req.Header.Get(HeaderSessionID)
	if sid == "" || !r.Close(req.Context(), sid, ReasonClient) {
		http.Error(w, msgInvalidSession, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StartSweeper closes sessions idle longer than the idle timeout until
// Shutdown. A zero timeout disables it.
func (r *Router) StartSweeper() {
	if r.idleTimeout <= 0 {
		return
	}
	interval := r.idleTimeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.SweepIdle(r.now())
			}
		}
	}()
}

// SweepIdle closes every session idle at now and returns how many it closed.
func (r *Router) SweepIdle(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	closed := 0
	for _, id := range r.sessions.idle(now, r.idleTimeout) {
		if sess, ok := r.sessions.get(id); ok && sess.streaming.Load() {
			continue
		}
		if r.Close(context.Background(), id, ReasonIdle) {
			closed++
		}
	}
	return closed
}

// Shutdown stops the sweeper and closes every session. New initialize
// requests fail afterwards.
func (r *Router) Shutdown(ctx context.Context) {
	r.closed.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	for _, id := range r.sessions.ids() {
		r.Close(ctx, id, ReasonShutdown)
	}
}

type rpcErrorBody struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   rpcErrorDetail  `json:"error"`
	ID      json.RawMessage `json:"id"`
}

type rpcErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeRPCError writes a JSON-RPC error envelope. A nil id encodes as null.
func writeRPCError(w http.ResponseWriter, status, code int, message string, id json.RawMessage) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	writeJSON(w, status, "", rpcErrorBody{
		JSONRPC: mcp.JSONRPC_VERSION,
		Error:   rpcErrorDetail{Code: code, Message: message},
		ID:      id,
	})
}

func writeJSON(w http.ResponseWriter, status int, sessionID string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if sessionID != "" {
		w.Header().Set(HeaderSessionID, sessionID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
