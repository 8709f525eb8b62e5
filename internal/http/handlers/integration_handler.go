// Integration HTTP handlers.
//
//   - POST   /integrations/canvas     (connect, token validated against Canvas)
//   - POST   /integrations/google     (connect, token pair stored as-is)
//   - GET    /integrations            (status per provider)
//   - DELETE /integrations/{provider} (disconnect)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/extapi"
	"github.com/hai-app/go-study-backend/internal/services"
)

// IntegrationService defines credential operations consumed by handlers.
type IntegrationService interface {
	ConnectCanvas(ctx context.Context, userID, accessToken string) (*domain.Integration, error)
	ConnectGoogle(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) (*domain.Integration, error)
	Disconnect(ctx context.Context, userID string, provider domain.Provider) error
	Status(ctx context.Context, userID string) ([]services.ProviderStatus, error)
}

// ConnectCanvasRequest is the JSON payload for connecting Canvas.
type ConnectCanvasRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// ConnectGoogleRequest is the JSON payload for connecting Google.
type ConnectGoogleRequest struct {
	AccessToken  string     `json:"access_token" binding:"required"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// ConnectCanvas validates and stores a Canvas access token for the caller.
func (h *Handlers) ConnectCanvas(c *gin.Context) {
	var req ConnectCanvasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "access_token required")
		return
	}

	in, err := h.integrationSvc.ConnectCanvas(c.Request.Context(), userID(c), req.AccessToken)
	if err != nil {
		if errors.Is(err, services.ErrEmptyToken) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		var apiErr *extapi.Error
		if errors.As(err, &apiErr) {
			// The probe against Canvas rejected the token.
			fail(c, http.StatusBadRequest, ErrCodeConnectFailed, apiErr.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeConnectFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, in)
}

// ConnectGoogle stores a Google token pair for the caller.
func (h *Handlers) ConnectGoogle(c *gin.Context) {
	var req ConnectGoogleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "access_token required")
		return
	}

	in, err := h.integrationSvc.ConnectGoogle(c.Request.Context(), userID(c), req.AccessToken, req.RefreshToken, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, services.ErrEmptyToken) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeConnectFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, in)
}

// IntegrationStatus reports the caller's connection state per provider.
func (h *Handlers) IntegrationStatus(c *gin.Context) {
	st, err := h.integrationSvc.Status(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"integrations": st})
}

// DisconnectIntegration removes the caller's credential for a provider.
func (h *Handlers) DisconnectIntegration(c *gin.Context) {
	provider := domain.Provider(c.Param("provider"))
	err := h.integrationSvc.Disconnect(c.Request.Context(), userID(c), provider)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidProvider):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrIntegrationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "integration not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
