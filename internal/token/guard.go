// Package token keeps account access tokens fresh. A guard sits between
// callers and the remote provider: anything about to use an account's
// credentials asks the guard first, and the guard refreshes through the
// OAuth manager when expiry is near.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/oauth"
	"github.com/mailpod/mailpod/internal/store"
)

// refreshThreshold is how long before expiry a token is refreshed. Refreshing
// ahead of the deadline keeps an in-flight IMAP login from racing expiry.
const refreshThreshold = 5 * time.Minute

// ErrReauthRequired is returned when the provider has revoked the refresh
// token. Only a new browser authorization can recover the account.
var ErrReauthRequired = errors.New("token: re-authorization required")

// Refresher exchanges a refresh token for fresh credentials.
type Refresher interface {
	Refresh(ctx context.Context, provider model.Provider, refreshToken string) (model.OAuthTokens, error)
}

// Guard serializes refreshes per account. Two goroutines asking for the same
// account's token at the same moment produce one provider round trip, not two.
type Guard struct {
	store     store.Store
	refresher Refresher
	logger    *slog.Logger

	// now is stubbed in tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates a token guard over the given store and refresher.
func NewGuard(st store.Store, refresher Refresher, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:     st,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (g *Guard) accountLock(accountID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[accountID] = l
	}
	return l
}

// EnsureValidToken refreshes the account's tokens if they expire within the
// threshold. It is safe to call concurrently; refreshes for the same account
// are serialized so the second caller sees the first caller's result.
func (g *Guard) EnsureValidToken(ctx context.Context, accountID string) error {
	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	a, err := g.store.Account(accountID)
	if err != nil {
		return err
	}
	if g.fresh(a.Tokens) {
		return nil
	}
	// Without a refresh token there is nothing to exchange; don't bother the
	// provider.
	if a.Tokens.RefreshToken == "" {
		return fmt.Errorf("%w: %s", ErrReauthRequired, a.Email)
	}

	g.logger.Debug("refreshing tokens", "account", accountID, "expires_at", a.Tokens.ExpiresAt)

	tokens, err := g.refresher.Refresh(ctx, a.Provider, a.Tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidGrant) {
			return fmt.Errorf("%w: %s", ErrReauthRequired, a.Email)
		}
		return fmt.Errorf("refresh tokens for %s: %w", a.Email, err)
	}

	if err := g.store.UpdateAccountTokens(accountID, tokens); err != nil {
		return fmt.Errorf("persist refreshed tokens: %w", err)
	}
	return nil
}

// AccountWithValidToken loads an account after ensuring its tokens are valid.
// The returned account reflects any refresh that just happened.
func (g *Guard) AccountWithValidToken(ctx context.Context, accountID string) (*model.Account, error) {
	if err := g.EnsureValidToken(ctx, accountID); err != nil {
		return nil, err
	}
	return g.store.Account(accountID)
}

// fresh reports whether the tokens are still comfortably inside their
// lifetime. A zero expiry means the account never recorded one and must
// refresh.
func (g *Guard) fresh(tokens model.OAuthTokens) bool {
	if tokens.ExpiresAt.IsZero() {
		return false
	}
	return g.now().Before(tokens.ExpiresAt.Add(-refreshThreshold))
}
