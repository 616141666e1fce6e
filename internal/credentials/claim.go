package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"devbridge-go/internal/observability"
)

// Claim results, used as metric labels.
const (
	ClaimClaimed  = "claimed"
	ClaimNotFound = "not_found"
	ClaimInvalid  = "invalid"
	ClaimFailed   = "error"
	ClaimClosed   = "session_closed"
)

// Claimer moves pending credentials into a session. It is the only path
// that adds credentials to the session table.
type Claimer struct {
	store   *Store
	logger  *zap.Logger
	metrics *observability.MetricsManager
}

func NewClaimer(store *Store, logger *zap.Logger, metrics *observability.MetricsManager) *Claimer {
	return &Claimer{store: store, logger: logger, metrics: metrics}
}

// Claim consumes pending[authCode] and merges it into session[sessionID].
// Each provider part present in the pending entry replaces the session's;
// parts absent from it are kept. A code can be claimed once.
func (c *Claimer) Claim(ctx context.Context, authCode, sessionID string) error {
	return c.ClaimLive(ctx, authCode, sessionID, nil)
}

// ClaimLive is Claim for a session that can close while the claim runs.
// alive is asked before the pending entry is taken and again after the
// session write; a session gone by the second check has the merged bundle
// dropped, so a closed session never keeps credentials. Both cases report
// ErrSessionClosed. A nil alive skips the checks.
func (c *Claimer) ClaimLive(ctx context.Context, authCode, sessionID string, alive func(string) bool) error {
	if authCode == "" || sessionID == "" {
		c.metrics.RecordClaim(ClaimInvalid)
		return fmt.Errorf("authCode and sessionId are required: %w", ErrInvalidArgument)
	}
	if alive != nil && !alive(sessionID) {
		c.metrics.RecordClaim(ClaimClosed)
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionClosed)
	}

	// Taking the entry first makes concurrent claims of one code race on the
	// pending lock only; the loser sees ErrNotFound.
	pending, ok, err := c.store.Pending.Take(ctx, authCode)
	if err != nil {
		c.metrics.RecordClaim(ClaimFailed)
		return fmt.Errorf("take pending entry: %w", err)
	}
	if !ok {
		c.metrics.RecordClaim(ClaimNotFound)
		return fmt.Errorf("auth code: %w", ErrNotFound)
	}

	err = c.store.Sessions.Update(ctx, sessionID, func(cur Bundle) (Bundle, error) {
		return Merge(pending, cur), nil
	})
	if err != nil {
		c.metrics.RecordClaim(ClaimFailed)
		c.logger.Error("Pending credentials consumed but session write failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("store session credentials: %w", err)
	}

	// The router removes a session before forgetting its credentials, so a
	// close that raced the write above is visible here.
	if alive != nil && !alive(sessionID) {
		if err := c.store.Forget(ctx, sessionID); err != nil {
			c.logger.Warn("Failed to drop credentials of a closed session",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		c.metrics.RecordClaim(ClaimClosed)
		return fmt.Errorf("session %s closed during claim: %w", sessionID, ErrSessionClosed)
	}

	c.metrics.RecordClaim(ClaimClaimed)
	c.logger.Info("Credentials claimed",
		zap.String("session_id", sessionID),
		zap.Bool("github", pending.GitHub != nil),
		zap.Bool("clickup", pending.ClickUp != nil))
	return nil
}
