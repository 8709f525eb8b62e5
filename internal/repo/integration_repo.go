// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Integration
// model, which stores one third-party credential per (user, provider) pair.
//
// Error semantics:
//   - When an integration is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hai-app/go-study-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetIntegration fetches the integration row for (userID, provider), or
// ErrNotFound if the user never connected that provider.
func GetIntegration(ctx context.Context, db *gorm.DB, userID string, provider domain.Provider) (*domain.Integration, error) {
	var in domain.Integration
	err := db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpsertIntegration inserts or replaces the credential for (userID, provider).
// The upsert keys on the (user_id, provider) unique index so a reconnect
// overwrites the previous token pair in place. deleted_at is cleared on
// conflict: a reconnect after disconnect revives the soft-deleted row.
func UpsertIntegration(ctx context.Context, db *gorm.DB, userID string, provider domain.Provider, accessToken, refreshToken string, expiresAt *time.Time) (*domain.Integration, error) {
	now := time.Now().UTC()
	in := &domain.Integration{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"access_token":  accessToken,
				"refresh_token": refreshToken,
				"expires_at":    expiresAt,
				"updated_at":    now,
				"deleted_at":    nil,
			}),
		}).
		Create(in).Error
	if err != nil {
		return nil, err
	}
	return in, nil
}

// DeleteIntegration soft-deletes the credential for (userID, provider).
// Returns ErrNotFound when no row exists for the pair.
func DeleteIntegration(ctx context.Context, db *gorm.DB, userID string, provider domain.Provider) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&domain.Integration{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateIntegrationTokens mutates the stored token pair for (userID, provider)
// in place, as happens after a refresh-token exchange. Returns ErrNotFound when
// no row exists for the pair.
func UpdateIntegrationTokens(ctx context.Context, db *gorm.DB, userID string, provider domain.Provider, accessToken, refreshToken string, expiresAt *time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Integration{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
