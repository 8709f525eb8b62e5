package tokens

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/repo"
)

func newTokenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:tokens_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Integration{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeRefresher struct {
	calls      int
	access     string
	newRefresh string
	expiresAt  time.Time
	err        error
}

func (f *fakeRefresher) Exchange(_ context.Context, _ string) (string, string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", "", time.Time{}, f.err
	}
	return f.access, f.newRefresh, f.expiresAt, nil
}

func seedIntegration(t *testing.T, db *gorm.DB, userID string, provider domain.Provider, access, refresh string, expiresAt *time.Time) {
	t.Helper()
	if _, err := repo.UpsertIntegration(context.Background(), db, userID, provider, access, refresh, expiresAt); err != nil {
		t.Fatalf("seed integration: %v", err)
	}
}

func TestStore_Get_Missing(t *testing.T) {
	s := NewStore(newTokenDB(t), nil, 0)

	_, err := s.Get(context.Background(), "u1", domain.ProviderCanvas)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestStore_Get_PopulatesCache(t *testing.T) {
	db := newTokenDB(t)
	s := NewStore(db, nil, 0)
	seedIntegration(t, db, "u1", domain.ProviderCanvas, "tok-1", "", nil)

	cred, err := s.Get(context.Background(), "u1", domain.ProviderCanvas)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.AccessToken != "tok-1" {
		t.Fatalf("access = %q, want tok-1", cred.AccessToken)
	}

	// Hard-delete the row; a cache hit must not touch storage.
	if err := db.Exec("DELETE FROM integrations").Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	cred, err = s.Get(context.Background(), "u1", domain.ProviderCanvas)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if cred.AccessToken != "tok-1" {
		t.Fatalf("cached access = %q, want tok-1", cred.AccessToken)
	}
}

func TestStore_Invalidate_ForcesReread(t *testing.T) {
	db := newTokenDB(t)
	s := NewStore(db, nil, 0)
	seedIntegration(t, db, "u1", domain.ProviderCanvas, "tok-1", "", nil)

	if _, err := s.Get(context.Background(), "u1", domain.ProviderCanvas); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := db.Exec("DELETE FROM integrations").Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	s.Invalidate("u1", domain.ProviderCanvas)
	// Invalidating an absent entry must be a no-op.
	s.Invalidate("u1", domain.ProviderCanvas)

	if _, err := s.Get(context.Background(), "u1", domain.ProviderCanvas); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after invalidate, got %v", err)
	}
}

func TestStore_Valid_CanvasNeverRefreshes(t *testing.T) {
	db := newTokenDB(t)
	fr := &fakeRefresher{access: "should-not-be-used"}
	s := NewStore(db, fr, 0)

	past := time.Now().UTC().Add(-time.Hour)
	seedIntegration(t, db, "u1", domain.ProviderCanvas, "canvas-tok", "", &past)

	cred, err := s.Valid(context.Background(), "u1", domain.ProviderCanvas)
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if cred.AccessToken != "canvas-tok" {
		t.Fatalf("access = %q, want canvas-tok", cred.AccessToken)
	}
	if fr.calls != 0 {
		t.Fatalf("refresher called %d times for canvas", fr.calls)
	}
}

func TestStore_Valid_RefreshesExpiredGoogle(t *testing.T) {
	db := newTokenDB(t)
	future := time.Now().UTC().Add(time.Hour)
	fr := &fakeRefresher{access: "fresh-tok", newRefresh: "fresh-refresh", expiresAt: future}
	s := NewStore(db, fr, 0)

	past := time.Now().UTC().Add(-time.Minute)
	seedIntegration(t, db, "u1", domain.ProviderGoogle, "stale-tok", "refresh-1", &past)

	cred, err := s.Valid(context.Background(), "u1", domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if cred.AccessToken != "fresh-tok" || cred.RefreshToken != "fresh-refresh" {
		t.Fatalf("got %+v, want refreshed pair", cred)
	}
	if fr.calls != 1 {
		t.Fatalf("refresher calls = %d, want 1", fr.calls)
	}

	// The new pair must be persisted, not just cached.
	row, err := repo.GetIntegration(context.Background(), db, "u1", domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("get integration: %v", err)
	}
	if row.AccessToken != "fresh-tok" || row.RefreshToken != "fresh-refresh" {
		t.Fatalf("persisted row = %+v, want refreshed pair", row)
	}

	// A second Valid hits the refreshed cache entry; no extra exchange.
	if _, err := s.Valid(context.Background(), "u1", domain.ProviderGoogle); err != nil {
		t.Fatalf("second valid: %v", err)
	}
	if fr.calls != 1 {
		t.Fatalf("refresher calls after second valid = %d, want 1", fr.calls)
	}
}

func TestStore_Valid_KeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	db := newTokenDB(t)
	future := time.Now().UTC().Add(time.Hour)
	fr := &fakeRefresher{access: "fresh-tok", newRefresh: "", expiresAt: future}
	s := NewStore(db, fr, 0)

	past := time.Now().UTC().Add(-time.Minute)
	seedIntegration(t, db, "u1", domain.ProviderGoogle, "stale-tok", "refresh-1", &past)

	cred, err := s.Valid(context.Background(), "u1", domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if cred.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token = %q, want the original kept", cred.RefreshToken)
	}
}

func TestStore_Valid_ExchangeFailure(t *testing.T) {
	db := newTokenDB(t)
	fr := &fakeRefresher{err: errors.New("invalid_grant")}
	s := NewStore(db, fr, 0)

	past := time.Now().UTC().Add(-time.Minute)
	seedIntegration(t, db, "u1", domain.ProviderGoogle, "stale-tok", "refresh-1", &past)

	_, err := s.Valid(context.Background(), "u1", domain.ProviderGoogle)
	if !errors.Is(err, ErrRefreshExchange) {
		t.Fatalf("expected ErrRefreshExchange, got %v", err)
	}

	// The stale row must be untouched after a failed exchange.
	row, err := repo.GetIntegration(context.Background(), db, "u1", domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("get integration: %v", err)
	}
	if row.AccessToken != "stale-tok" {
		t.Fatalf("row access = %q, want stale-tok", row.AccessToken)
	}
}

func TestStore_Valid_GoogleWithoutRefreshToken(t *testing.T) {
	db := newTokenDB(t)
	s := NewStore(db, &fakeRefresher{}, 0)

	past := time.Now().UTC().Add(-time.Minute)
	seedIntegration(t, db, "u1", domain.ProviderGoogle, "stale-tok", "", &past)

	_, err := s.Valid(context.Background(), "u1", domain.ProviderGoogle)
	if !errors.Is(err, ErrRefreshExchange) {
		t.Fatalf("expected ErrRefreshExchange without stored refresh token, got %v", err)
	}
}

func TestCredential_ExpiredAt(t *testing.T) {
	now := time.Now().UTC()
	in10 := now.Add(10 * time.Second)
	in90 := now.Add(90 * time.Second)

	cases := []struct {
		name string
		cred Credential
		skew time.Duration
		want bool
	}{
		{"no expiry", Credential{}, time.Minute, false},
		{"within skew", Credential{ExpiresAt: &in10}, time.Minute, true},
		{"outside skew", Credential{ExpiresAt: &in90}, time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cred.ExpiredAt(now, tc.skew); got != tc.want {
				t.Fatalf("ExpiredAt = %v, want %v", got, tc.want)
			}
		})
	}
}
