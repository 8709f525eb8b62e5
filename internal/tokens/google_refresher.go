package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleRefresher exchanges a stored refresh token at Google's OAuth token
// endpoint. Only the refresh-token grant is implemented here; the initial
// consent/redirect flow happens outside this backend.
type GoogleRefresher struct {
	HTTPClient   *http.Client
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewGoogleRefresher constructs a refresher with a default HTTP client.
func NewGoogleRefresher(tokenURL, clientID, clientSecret string) *GoogleRefresher {
	return &GoogleRefresher{
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// tokenResponse is the subset of Google's token endpoint response we use.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Exchange performs the refresh_token grant and returns the new access token,
// the (possibly rotated) refresh token, and the computed expiry instant.
func (r *GoogleRefresher) Exchange(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {r.ClientID},
		"client_secret": {r.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", time.Time{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", "", time.Time{}, fmt.Errorf("token endpoint returned empty access_token")
	}

	expiresAt := time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return tok.AccessToken, tok.RefreshToken, expiresAt, nil
}
