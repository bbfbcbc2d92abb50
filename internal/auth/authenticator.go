// ABOUTME: Credential exchange against the backend tenant API
// ABOUTME: Trades machine credentials for a bearer token consumed by the tool connection

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrAuthFailed indicates the backend rejected the credential exchange.
var ErrAuthFailed = errors.New("failed to authenticate")

// Credential is an opaque bearer token with its expiry. Nothing in the
// gateway inspects the token contents; it is only forwarded as
// "Authorization: Bearer <token>".
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator exchanges configured machine credentials for a Credential.
type Authenticator interface {
	Authenticate(ctx context.Context) (Credential, error)
}

// TenantAuthenticator implements Authenticator against the backend's
// POST /v1/tenants/auth endpoint.
type TenantAuthenticator struct {
	endpoint   string
	email      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTenantAuthenticator creates an authenticator for the given backend endpoint.
// The endpoint is the API base URL; the auth path is appended internally.
func NewTenantAuthenticator(endpoint, email, apiKey string, logger *slog.Logger) *TenantAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantAuthenticator{
		endpoint:   strings.TrimRight(endpoint, "/"),
		email:      email,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "auth"),
	}
}

type authRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"apiKey"`
}

type authResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// Authenticate posts the configured credentials and returns the bearer token.
// Any transport failure, non-2xx status, or unsuccessful response body is
// reported as ErrAuthFailed.
func (a *TenantAuthenticator) Authenticate(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(authRequest{Email: a.email, APIKey: a.apiKey})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: encoding request: %v", ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/tenants/auth", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Warn("credential exchange rejected", "status", resp.StatusCode, "body", string(data))
		return Credential{}, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Credential{}, fmt.Errorf("%w: decoding response: %v", ErrAuthFailed, err)
	}
	if !ar.Success || ar.Token == "" {
		a.logger.Warn("credential exchange unsuccessful", "message", ar.Message)
		return Credential{}, fmt.Errorf("%w: %s", ErrAuthFailed, ar.Message)
	}

	cred := Credential{Token: ar.Token}
	if ar.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, ar.ExpiresAt); err == nil {
			cred.ExpiresAt = t
		} else {
			a.logger.Warn("unparseable token expiry", "expires_at", ar.ExpiresAt)
		}
	}

	a.logger.Info("authenticated against backend", "expires_at", cred.ExpiresAt)
	return cred, nil
}
