package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServerStartAndShutdown(t *testing.T) {
	f := newRouterFixture(t, nil)
	mux := http.NewServeMux()
	mux.Handle("/mcp", f.router)
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	srv := New("127.0.0.1:0", mux, f.router, zap.NewNop())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	require.Eventually(t, srv.IsRunning, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
	assert.ErrorIs(t, f.router.Check(context.Background()), ErrRouterClosed)
}

func TestListenReportsPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(ln.Addr().String(), http.NewServeMux(), nil, zap.NewNop())
	err = srv.Listen()
	var inUse *PortInUseError
	require.True(t, errors.As(err, &inUse), "got %v", err)
	assert.Equal(t, ln.Addr().String(), inUse.Address)
}

func TestIsAddrInUseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"errno", syscall.EADDRINUSE, true},
		{"wrapped op error", &net.OpError{Op: "listen", Err: syscall.EADDRINUSE}, true},
		{"message", errors.New("bind: address already in use"), true},
		{"other", errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAddrInUseError(tt.err))
		})
	}
}
