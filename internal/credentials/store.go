package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"devbridge-go/internal/config"
)

// Store owns the two credential tables. One Store is created at startup and
// passed to every component that reads or writes credentials.
type Store struct {
	Pending  Sweepable
	Sessions Table

	closers []io.Closer
}

func NewStore(pending Sweepable, sessions Table) *Store {
	return &Store{Pending: pending, Sessions: sessions}
}

// Open builds a Store for the configured backend. Session credentials
// always live in memory since their lifetime is bound to a live transport.
func Open(cfg *config.Config, logger *zap.SugaredLogger) (*Store, error) {
	ttl := cfg.PendingTTL()
	sessions := NewMemoryTable(0)

	switch cfg.Credentials.Backend {
	case config.BackendBolt:
		pending, err := OpenBoltTable(cfg.DataDir, ttl, logger)
		if err != nil {
			return nil, err
		}
		s := NewStore(pending, sessions)
		s.closers = append(s.closers, pending)
		return s, nil
	case config.BackendMemory, "":
		return NewStore(NewMemoryTable(ttl), sessions), nil
	default:
		return nil, fmt.Errorf("unknown credentials backend %q", cfg.Credentials.Backend)
	}
}

// Close releases any persistent backend.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Session returns the credentials bound to a session, empty when none.
func (s *Store) Session(ctx context.Context, sessionID string) (Bundle, error) {
	return s.Sessions.GetOrDefault(ctx, sessionID)
}

// Forget drops a session's credentials. Called when the transport closes.
func (s *Store) Forget(ctx context.Context, sessionID string) error {
	return s.Sessions.Delete(ctx, sessionID)
}

// AddPending merges part into the pending entry under key. Callbacks for
// different providers that share a key accumulate instead of overwriting.
func (s *Store) AddPending(ctx context.Context, key string, part Bundle) error {
	if key == "" {
		return fmt.Errorf("pending key: %w", ErrInvalidArgument)
	}
	return s.Pending.Update(ctx, key, func(cur Bundle) (Bundle, error) {
		return Merge(part, cur), nil
	})
}

// SelectWorkspace sets the selected ClickUp workspace of a session. The id
// must be one of the workspaces captured at login.
func (s *Store) SelectWorkspace(ctx context.Context, sessionID, workspaceID string) (Workspace, error) {
	if sessionID == "" || workspaceID == "" {
		return Workspace{}, ErrInvalidArgument
	}

	var selected Workspace
	err := s.Sessions.Update(ctx, sessionID, func(cur Bundle) (Bundle, error) {
		if cur.ClickUp == nil || cur.ClickUp.AccessToken == "" {
			return cur, ErrNotAuthenticated
		}
		ws, ok := cur.ClickUp.Workspace(workspaceID)
		if !ok {
			return cur, fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
		}
		selected = ws
		cur.ClickUp.SelectedWorkspaceID = ws.ID
		return cur, nil
	})
	return selected, err
}
