// Package tokens resolves third-party credentials per (user, provider) pair.
//
// The Store fronts the integrations table with a process-local cache so a
// burst of agent tool calls does not pay a database round-trip per call.
// Staleness is bounded: every persisted write to an integration row goes back
// through the Store, which overwrites the cache entry, and callers invalidate
// explicitly when a tool call fails so the next attempt re-reads storage.
//
// For Google, Valid() applies the refresh policy proactively: expiry is
// checked before every use and an expired credential is exchanged at the
// token endpoint before any API call is made. Refreshing reactively on a 401
// is deliberately not done here — a mid-call refresh leaves partial-failure
// states the adapters would have to unwind.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/repo"
)

// ErrTokenNotFound indicates that no credential is stored for the requested
// (user, provider) pair. Callers surface it as a "please connect your
// account" signal.
var ErrTokenNotFound = errors.New("integration token not found")

// ErrRefreshExchange indicates that the Google refresh-token exchange failed.
// It is fatal for the current operation; no retry is attempted.
var ErrRefreshExchange = errors.New("refresh token exchange failed")

// Credential is the resolved token material for one (user, provider) pair.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// ExpiredAt reports whether the credential is expired (or expires within
// skew) at the given instant. Credentials without an expiry never expire.
func (c Credential) ExpiredAt(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

type cacheKey struct {
	userID   string
	provider domain.Provider
}

// Refresher exchanges a refresh token for a fresh access token. Implemented
// by GoogleRefresher; faked in tests.
type Refresher interface {
	Exchange(ctx context.Context, refreshToken string) (access string, newRefresh string, expiresAt time.Time, err error)
}

// Store resolves, caches, and refreshes integration credentials. It is an
// injected service object, safe for concurrent use; refreshes for the same
// (user, provider) pair are collapsed through a singleflight group so
// concurrent turns never double-exchange the same refresh token.
type Store struct {
	DB      *gorm.DB
	Google  Refresher     // nil disables refresh (e.g. tests without Google)
	Skew    time.Duration // treat tokens expiring within Skew as expired

	mu    sync.RWMutex
	cache map[cacheKey]Credential
	sf    singleflight.Group
}

// NewStore constructs a Store with the given database handle and refresher.
func NewStore(db *gorm.DB, google Refresher, skew time.Duration) *Store {
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Store{
		DB:     db,
		Google: google,
		Skew:   skew,
		cache:  make(map[cacheKey]Credential),
	}
}

// Get resolves the credential for (userID, provider), consulting the cache
// first and falling back to the integrations table. A storage miss returns
// ErrTokenNotFound. A storage hit populates the cache before returning.
//
// Get performs no expiry handling; Google callers should use Valid.
func (s *Store) Get(ctx context.Context, userID string, provider domain.Provider) (Credential, error) {
	key := cacheKey{userID, provider}

	s.mu.RLock()
	cred, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cred, nil
	}

	row, err := repo.GetIntegration(ctx, s.DB, userID, provider)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Credential{}, fmt.Errorf("%w: %s", ErrTokenNotFound, provider)
		}
		return Credential{}, err
	}

	cred = Credential{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}
	s.put(key, cred)
	return cred, nil
}

// Valid resolves a credential that is safe to use right now. For Google it
// applies the refresh policy: an expired credential is exchanged at the token
// endpoint, the new pair is persisted to the integration row, and the cache
// is overwritten — all before the caller touches the provider API.
func (s *Store) Valid(ctx context.Context, userID string, provider domain.Provider) (Credential, error) {
	cred, err := s.Get(ctx, userID, provider)
	if err != nil {
		return Credential{}, err
	}
	if provider != domain.ProviderGoogle || !cred.ExpiredAt(time.Now().UTC(), s.Skew) {
		return cred, nil
	}
	return s.refreshGoogle(ctx, userID, cred)
}

// Invalidate removes the cache entry for (userID, provider). It is an
// idempotent no-op when the entry is absent. The next Get re-reads storage.
func (s *Store) Invalidate(userID string, provider domain.Provider) {
	s.mu.Lock()
	delete(s.cache, cacheKey{userID, provider})
	s.mu.Unlock()
}

// Put records a freshly persisted credential in the cache. Callers that write
// an integration row directly (connect endpoints) use this to keep the cache
// coherent with storage.
func (s *Store) Put(userID string, provider domain.Provider, cred Credential) {
	s.put(cacheKey{userID, provider}, cred)
}

func (s *Store) put(key cacheKey, cred Credential) {
	s.mu.Lock()
	s.cache[key] = cred
	s.mu.Unlock()
}

// refreshGoogle performs the refresh-token exchange and persists the result.
// Concurrent callers for the same user share one exchange via singleflight;
// last-writer-wins races on the row are therefore impossible within one
// process.
func (s *Store) refreshGoogle(ctx context.Context, userID string, stale Credential) (Credential, error) {
	if s.Google == nil {
		return Credential{}, fmt.Errorf("%w: no refresher configured", ErrRefreshExchange)
	}
	if stale.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: no refresh token stored", ErrRefreshExchange)
	}

	v, err, _ := s.sf.Do("google:"+userID, func() (interface{}, error) {
		// Re-check under the flight: another caller may have refreshed while
		// this one waited.
		s.mu.RLock()
		cur, ok := s.cache[cacheKey{userID, domain.ProviderGoogle}]
		s.mu.RUnlock()
		if ok && !cur.ExpiredAt(time.Now().UTC(), s.Skew) {
			return cur, nil
		}

		access, newRefresh, expiresAt, err := s.Google.Exchange(ctx, stale.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRefreshExchange, err)
		}
		if newRefresh == "" {
			newRefresh = stale.RefreshToken
		}
		exp := expiresAt.UTC()

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return repo.UpdateIntegrationTokens(ctx, tx, userID, domain.ProviderGoogle, access, newRefresh, &exp)
		})
		if err != nil {
			return nil, err
		}

		fresh := Credential{AccessToken: access, RefreshToken: newRefresh, ExpiresAt: &exp}
		s.put(cacheKey{userID, domain.ProviderGoogle}, fresh)
		log.Debug().Str("user_id", userID).Time("expires_at", exp).Msg("google credential refreshed")
		return fresh, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}
