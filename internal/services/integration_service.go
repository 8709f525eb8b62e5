package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hai-app/go-study-backend/internal/canvas"
	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/repo"
	"github.com/hai-app/go-study-backend/internal/tokens"
)

// IntegrationService owns connect/disconnect of third-party credentials and
// keeps the token store cache in step with what is persisted.
type IntegrationService struct {
	DB     *gorm.DB
	Tokens *tokens.Store
	Canvas *canvas.Client
}

// NewIntegrationService constructs an IntegrationService.
func NewIntegrationService(db *gorm.DB, ts *tokens.Store, cv *canvas.Client) *IntegrationService {
	return &IntegrationService{DB: db, Tokens: ts, Canvas: cv}
}

// ConnectCanvas stores a Canvas access token for the user. The token is
// validated by listing the user's courses before anything is persisted, so a
// bad token is rejected with the provider's error instead of silently
// breaking later tool calls.
func (s *IntegrationService) ConnectCanvas(ctx context.Context, userID, accessToken string) (*domain.Integration, error) {
	tr := otel.Tracer("services/IntegrationService")
	ctx, span := tr.Start(ctx, "ConnectCanvas",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrEmptyToken
	}

	if _, err := s.Canvas.ListCourses(ctx, accessToken); err != nil {
		return nil, err
	}

	in, err := repo.UpsertIntegration(ctx, s.DB, userID, domain.ProviderCanvas, accessToken, "", nil)
	if err != nil {
		return nil, err
	}
	s.Tokens.Put(userID, domain.ProviderCanvas, tokens.Credential{AccessToken: accessToken})
	return in, nil
}

// ConnectGoogle stores a Google token pair for the user. Google tokens are
// not probed here; the refresh path surfaces a bad pair on first use.
func (s *IntegrationService) ConnectGoogle(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) (*domain.Integration, error) {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" {
		return nil, ErrEmptyToken
	}

	in, err := repo.UpsertIntegration(ctx, s.DB, userID, domain.ProviderGoogle, accessToken, refreshToken, expiresAt)
	if err != nil {
		return nil, err
	}
	s.Tokens.Put(userID, domain.ProviderGoogle, tokens.Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	})
	return in, nil
}

// Disconnect removes the stored credential for the pair and evicts it from
// the token cache.
func (s *IntegrationService) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	if !provider.Valid() {
		return ErrInvalidProvider
	}
	if err := repo.DeleteIntegration(ctx, s.DB, userID, provider); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrIntegrationNotFound
		}
		return err
	}
	s.Tokens.Invalidate(userID, provider)
	return nil
}

// ProviderStatus reports one provider's connection state.
type ProviderStatus struct {
	Provider  domain.Provider `json:"provider"`
	Connected bool            `json:"connected"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Status reports the user's connection state for every supported provider.
func (s *IntegrationService) Status(ctx context.Context, userID string) ([]ProviderStatus, error) {
	out := make([]ProviderStatus, 0, 2)
	for _, p := range []domain.Provider{domain.ProviderCanvas, domain.ProviderGoogle} {
		st := ProviderStatus{Provider: p}
		in, err := repo.GetIntegration(ctx, s.DB, userID, p)
		switch {
		case err == nil:
			st.Connected = true
			st.ExpiresAt = in.ExpiresAt
		case errors.Is(err, repo.ErrNotFound):
			// stays disconnected
		default:
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
