package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const notificationBuffer = 64

// session is one MCP client connection. The router owns the only reference
// by id; a session never points back at the router.
type session struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	done          chan struct{}
	closeOnce     sync.Once

	// deliver serializes message handling so a session sees its messages
	// in arrival order.
	deliver sync.Mutex

	initialized atomic.Bool
	streaming   atomic.Bool
	lastActive  atomic.Int64
	createdAt   time.Time

	infoMu       sync.RWMutex
	clientInfo   mcp.Implementation
	capabilities mcp.ClientCapabilities
}

var (
	_ mcpserver.ClientSession         = (*session)(nil)
	_ mcpserver.SessionWithClientInfo = (*session)(nil)
)

func newSession(id string, now time.Time) *session {
	s := &session{
		id:            id,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		done:          make(chan struct{}),
		createdAt:     now,
	}
	s.touch(now)
	return s
}

func (s *session) SessionID() string { return s.id }

func (s *session) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

func (s *session) Initialize()       { s.initialized.Store(true) }
func (s *session) Initialized() bool { return s.initialized.Load() }

func (s *session) GetClientInfo() mcp.Implementation {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.clientInfo
}

func (s *session) SetClientInfo(info mcp.Implementation) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	s.clientInfo = info
}

func (s *session) GetClientCapabilities() mcp.ClientCapabilities {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.capabilities
}

func (s *session) SetClientCapabilities(c mcp.ClientCapabilities) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	s.capabilities = c
}

func (s *session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

// close signals stream readers. The notification channel stays open: the
// MCP server may still hold it briefly and sends are non-blocking.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
