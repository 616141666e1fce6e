package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"serve"},
		{"secrets", "set"},
		{"secrets", "get"},
		{"secrets", "delete"},
		{"secrets", "list"},
		{"config", "show"},
		{"config", "init"},
		{"health"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	for _, flag := range []string{"config", "data-dir", "listen", "log-level", "log-to-file", "log-dir"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEVBRIDGE_GITHUB_CLIENT_SECRET", "super-secret-value")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "-o", "json", "--data-dir", t.TempDir()})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), `"listen": ":3000"`)
	assert.NotContains(t, out.String(), "super-secret-value")
}

func TestHealthCommand(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr bool
	}{
		{"ready", `{"status":"ready","components":[{"name":"sessions","status":"ready"}]}`, http.StatusOK, false},
		{"not ready", `{"status":"not_ready","components":[{"name":"sessions","status":"not_ready","error":"router closed"}]}`, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/readyz", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			root := newRootCommand()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"health", "--url", ts.URL, "-o", "table"})
			err := root.Execute()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out.String(), "sessions")
		})
	}
}
