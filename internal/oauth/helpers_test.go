package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/upstream"
)

// fakeProviders serves the GitHub and ClickUp endpoints the flows touch.
type fakeProviders struct {
	srv          *httptest.Server
	devicePolls  int32
	approveAfter int32
	denyDevice   bool
	teamsStatus  int
	teamsBody    string

	githubExchanges  atomic.Int32
	clickupExchanges atomic.Int32
	// holdGitHub, when set, parks GitHub code exchanges until it is closed.
	holdGitHub chan struct{}
}

func newFakeProviders(t *testing.T) *fakeProviders {
	f := &fakeProviders{
		teamsStatus:  http.StatusOK,
		teamsBody:    `{"teams":[{"id":"1","name":"Acme"},{"id":"2","name":"Side"}]}`,
		approveAfter: 1,
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/github/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "urn:ietf:params:oauth:grant-type:device_code":
			n := atomic.AddInt32(&f.devicePolls, 1)
			switch {
			case f.denyDevice:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"access_denied"}`))
			case n <= f.approveAfter:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
			default:
				_, _ = w.Write([]byte(`{"access_token":"gho_device","token_type":"bearer","scope":"repo"}`))
			}
		default:
			f.githubExchanges.Add(1)
			if f.holdGitHub != nil {
				<-f.holdGitHub
			}
			if r.Form.Get("code") != "good" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"bad_verification_code","client_secret":"leak"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"gho_redirect","token_type":"bearer","scope":"repo,user:email"}`))
		}
	})
	mux.HandleFunc("/github/device", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "dev-code",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/clickup/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		f.clickupExchanges.Add(1)
		if r.Form.Get("client_secret") != "cu-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"cu_token"}`))
	})
	mux.HandleFunc("/clickup/api/team", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "cu_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(f.teamsStatus)
		_, _ = w.Write([]byte(f.teamsBody))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProviders) githubEndpoint() *oauth2.Endpoint {
	return &oauth2.Endpoint{
		AuthURL:       f.srv.URL + "/github/authorize",
		TokenURL:      f.srv.URL + "/github/token",
		DeviceAuthURL: f.srv.URL + "/github/device",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

func (f *fakeProviders) clickupEndpoint() *oauth2.Endpoint {
	return &oauth2.Endpoint{
		AuthURL:   f.srv.URL + "/clickup/authorize",
		TokenURL:  f.srv.URL + "/clickup/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func testConfig(t *testing.T, flow string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.FrontendURL = "http://front.test"
	cfg.GitHub.ClientID = "gh-id"
	cfg.GitHub.ClientSecret = "gh-secret"
	cfg.GitHub.Flow = flow
	cfg.ClickUp.ClientID = "cu-id"
	cfg.ClickUp.ClientSecret = "cu-secret"
	require.NoError(t, cfg.Validate())
	return cfg
}

type fixture struct {
	cfg      *config.Config
	store    *credentials.Store
	handlers *Handlers
	fake     *fakeProviders
}

func newFixture(t *testing.T) *fixture {
	cfg := testConfig(t, config.FlowRedirect)
	fake := newFakeProviders(t)
	store := credentials.NewStore(credentials.NewMemoryTable(10*time.Minute), credentials.NewMemoryTable(0))
	states, err := NewStateStore("test-secret", time.Minute)
	require.NoError(t, err)
	metrics := observability.NewMetricsManager(zap.NewNop().Sugar())

	h := NewHandlers(Deps{
		Config: cfg,
		Store:  store,
		States: states,
		ClickUpAPI: upstream.NewClickUpClient(upstream.Options{
			BaseURL: fake.srv.URL + "/clickup/api",
			Timeout: time.Second,
		}),
		Logger:          zap.NewNop(),
		Metrics:         metrics,
		GitHubEndpoint:  fake.githubEndpoint(),
		ClickUpEndpoint: fake.clickupEndpoint(),
	})
	return &fixture{cfg: cfg, store: store, handlers: h, fake: fake}
}
