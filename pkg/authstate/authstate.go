// Package authstate owns the two live tokens the console needs — one for
// the broker data plane, one for the admin management plane — and keeps
// them fresh with a single background refresh task per token.
package authstate

import (
	"context"
	"time"

	"github.com/sb-console/engine/pkg/concurrency"
	"github.com/sb-console/engine/pkg/logger"
	"github.com/sb-console/engine/pkg/model"
	"github.com/sb-console/engine/pkg/oauth"
)

// FailureCallback is invoked when a token's refresh attempts are exhausted.
// The UI uses this to prompt the operator to re-authenticate.
type FailureCallback func(scope model.Scope, err error)

// Config tunes the refresher's backoff policy.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns sensible defaults: 3 retries, 1s initial backoff
// doubling up to 30s.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

type slot struct {
	mu       *concurrency.SmartRWMutex
	token    model.AuthToken
	provider oauth.Provider
	cancel   context.CancelFunc
}

// State holds the data-plane and admin-plane token slots and runs their
// refresh tasks. Construct with New, start with StartRefresh, and call
// Close when the session ends.
type State struct {
	cfg        Config
	onFail     FailureCallback
	dataPlane  *slot
	adminPlane *slot
}

// New constructs a State with the given providers bound to each scope.
// Either provider may be nil if that plane is not used by this session.
func New(cfg Config, dataPlaneProvider, adminPlaneProvider oauth.Provider, onFail FailureCallback) *State {
	return &State{
		cfg:    cfg,
		onFail: onFail,
		dataPlane: &slot{
			mu:       concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "authstate-data-plane"}),
			provider: dataPlaneProvider,
		},
		adminPlane: &slot{
			mu:       concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "authstate-admin-plane"}),
			provider: adminPlaneProvider,
		},
	}
}

func (s *State) slotFor(scope model.Scope) *slot {
	if scope == model.ScopeAdminPlane {
		return s.adminPlane
	}
	return s.dataPlane
}

// Token returns a snapshot of the current token for scope. Callers must
// re-read before every call rather than caching it themselves.
func (s *State) Token(scope model.Scope) model.AuthToken {
	sl := s.slotFor(scope)
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.token
}

// Authenticate performs an initial, synchronous authentication for scope
// and stores the resulting token. Call this once per plane before starting
// the background refresher.
func (s *State) Authenticate(ctx context.Context, scope model.Scope) error {
	sl := s.slotFor(scope)
	if sl.provider == nil {
		return nil
	}
	tok, err := sl.provider.Authenticate(ctx)
	if err != nil {
		return err
	}
	sl.mu.Lock()
	sl.token = tok
	sl.mu.Unlock()
	return nil
}

// StartRefresh launches the background refresh task for both planes. The
// tasks stop when ctx is cancelled or when Close is called.
func (s *State) StartRefresh(ctx context.Context) {
	s.startSlotRefresh(ctx, model.ScopeDataPlane, s.dataPlane)
	s.startSlotRefresh(ctx, model.ScopeAdminPlane, s.adminPlane)
}

func (s *State) startSlotRefresh(parent context.Context, scope model.Scope, sl *slot) {
	if sl.provider == nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	sl.cancel = cancel

	concurrency.SafeGo(ctx, func() {
		s.refreshLoop(ctx, scope, sl)
	})
}

func (s *State) refreshLoop(ctx context.Context, scope model.Scope, sl *slot) {
	for {
		sl.mu.RLock()
		expiresAt := sl.token.ExpiresAt
		sl.mu.RUnlock()

		var wait time.Duration
		if !expiresAt.IsZero() {
			wait = time.Until(expiresAt)
			if wait < 0 {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if ctx.Err() != nil {
			return
		}

		if err := s.refreshWithBackoff(ctx, scope, sl); err != nil {
			logger.L().ErrorContext(ctx, "token refresh exhausted retries", "scope", scope, "error", err)
			if s.onFail != nil {
				s.onFail(scope, err)
			}
			// Back off a full cycle before trying again so a dead identity
			// provider doesn't spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.MaxBackoff):
			}
		}
	}
}

func (s *State) refreshWithBackoff(ctx context.Context, scope model.Scope, sl *slot) error {
	backoff := s.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tok, err := sl.provider.Authenticate(ctx)
		if err == nil {
			sl.mu.Lock()
			sl.token = tok
			sl.mu.Unlock()
			return nil
		}
		lastErr = err

		if attempt == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if s.cfg.MaxBackoff > 0 && backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
	return lastErr
}

// Close cancels both refresh tasks. It is safe to call multiple times.
func (s *State) Close() {
	if s.dataPlane.cancel != nil {
		s.dataPlane.cancel()
	}
	if s.adminPlane.cancel != nil {
		s.adminPlane.cancel()
	}
}
