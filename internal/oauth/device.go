package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/upstream"
)

const (
	defaultDeviceInterval = 5 * time.Second
	defaultDeviceLifetime = 15 * time.Minute
)

// DeviceInstructions is what the user needs to approve a device login.
type DeviceInstructions struct {
	AttemptID       string        `json:"attemptId"`
	UserCode        string        `json:"userCode"`
	VerificationURI string        `json:"verificationUri"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	Interval        time.Duration `json:"-"`
}

// DeviceFlowDeps wires a DeviceFlow. Endpoint defaults to github.com.
type DeviceFlowDeps struct {
	Config     *config.Config
	Store      *credentials.Store
	Claimer    *credentials.Claimer
	Attempts   *DeviceAttempts
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.MetricsManager
	Endpoint   *oauth2.Endpoint
}

// DeviceFlow runs the GitHub device authorization grant. A completed login
// is written to the pending table under its attempt id and immediately
// claimed for the session that started it.
type DeviceFlow struct {
	oauth      *oauth2.Config
	store      *credentials.Store
	claimer    *credentials.Claimer
	attempts   *DeviceAttempts
	locks      *keyedMutex
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *observability.MetricsManager
	now        func() time.Time
}

func NewDeviceFlow(d DeviceFlowDeps) *DeviceFlow {
	endpoint := oauthgithub.Endpoint
	if d.Endpoint != nil {
		endpoint = *d.Endpoint
	}
	attempts := d.Attempts
	if attempts == nil {
		attempts = NewDeviceAttempts()
	}
	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &DeviceFlow{
		oauth: &oauth2.Config{
			ClientID: d.Config.GitHub.ClientID,
			Endpoint: endpoint,
			Scopes:   d.Config.GitHub.Scopes,
		},
		store:      d.Store,
		claimer:    d.Claimer,
		attempts:   attempts,
		locks:      newKeyedMutex(),
		httpClient: httpClient,
		timeout:    d.Config.Upstream.Timeout.Std(),
		logger:     d.Logger.Named("oauth-device"),
		metrics:    d.Metrics,
		now:        time.Now,
	}
}

func (f *DeviceFlow) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// StartLogin requests a device code for the calling session.
func (f *DeviceFlow) StartLogin(ctx context.Context, sessionID string) (*DeviceInstructions, error) {
	if f.oauth.ClientID == "" {
		return nil, ErrProviderNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	da, err := f.oauth.DeviceAuth(f.withClient(ctx))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request device code: %w", upstream.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("request device code: %s", describeError(err))
	}

	expiresAt := da.Expiry
	if expiresAt.IsZero() {
		expiresAt = f.now().Add(defaultDeviceLifetime)
	}
	interval := time.Duration(da.Interval) * time.Second
	if interval <= 0 {
		interval = defaultDeviceInterval
	}

	id := f.attempts.Add(sessionID, da, expiresAt)
	f.logger.Info("Device login started",
		zap.String("attempt_id", id),
		zap.String("session_id", sessionID),
		zap.Time("expires_at", expiresAt))

	return &DeviceInstructions{
		AttemptID:       id,
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
		ExpiresAt:       expiresAt,
		Interval:        interval,
	}, nil
}

// FinishLogin waits at most one polling interval for the user to approve
// attemptID. pending reports that the user has not finished yet.
func (f *DeviceFlow) FinishLogin(ctx context.Context, sessionID, attemptID string) (tok *oauth2.Token, pending bool, err error) {
	unlock := f.locks.Lock(attemptID)
	defer unlock()

	attempt, ok := f.attempts.get(sessionID, attemptID)
	if !ok {
		return nil, false, ErrAttemptNotFound
	}

	interval := time.Duration(attempt.auth.Interval) * time.Second
	if interval <= 0 {
		interval = defaultDeviceInterval
	}
	pollCtx, cancel := context.WithTimeout(ctx, interval+interval/2)
	defer cancel()

	tok, err = f.oauth.DeviceAccessToken(f.withClient(pollCtx), attempt.auth)
	if err != nil {
		pending, err = f.classify(ctx, attemptID, attempt, err)
		return nil, pending, err
	}

	if err := f.store.AddPending(ctx, attemptID, credentials.Bundle{GitHub: githubAuth(tok)}); err != nil {
		return nil, false, fmt.Errorf("store device credentials: %w", err)
	}
	if err := f.claimer.Claim(ctx, attemptID, sessionID); err != nil {
		return nil, false, fmt.Errorf("claim device credentials: %w", err)
	}
	f.attempts.remove(attemptID)
	f.metrics.RecordOAuthCallback(upstream.ProviderGitHub, resultSuccess)
	f.logger.Info("Device login completed", zap.String("attempt_id", attemptID), zap.String("session_id", sessionID))
	return tok, false, nil
}

// classify maps a DeviceAccessToken failure to pending (true, nil) or a
// terminal error.
func (f *DeviceFlow) classify(ctx context.Context, attemptID string, attempt deviceAttempt, err error) (bool, error) {
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &re) && re.ErrorCode == "access_denied":
		f.attempts.remove(attemptID)
		f.metrics.RecordOAuthCallback(upstream.ProviderGitHub, resultDenied)
		return false, ErrDeviceAccessDenied
	case errors.As(err, &re) && re.ErrorCode == "expired_token":
		f.attempts.remove(attemptID)
		return false, ErrDeviceExpired
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		if !f.now().Before(attempt.expiresAt) {
			f.attempts.remove(attemptID)
			return false, ErrDeviceExpired
		}
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		f.logger.Warn("Device token poll failed", zap.String("attempt_id", attemptID), zap.String("error", describeError(err)))
		return false, fmt.Errorf("%w: %s", ErrExchangeFailed, describeError(err))
	}
}
