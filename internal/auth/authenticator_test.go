// ABOUTME: Tests for the backend credential exchange
// ABOUTME: Covers success, rejection statuses, unsuccessful bodies, and expiry parsing

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_Success(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tenants/auth", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bot@example.com", req["email"])
		assert.Equal(t, "secret", req["apiKey"])

		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"message":   "ok",
			"token":     "jwt-token-value",
			"expiresAt": expiry.Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	a := NewTenantAuthenticator(srv.URL, "bot@example.com", "secret", nil)
	cred, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-token-value", cred.Token)
	assert.Equal(t, expiry, cred.ExpiresAt.UTC())
}

func TestAuthenticate_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewTenantAuthenticator(srv.URL, "bot@example.com", "wrong", nil)
	_, err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticate_UnsuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "tenant disabled",
		})
	}))
	defer srv.Close()

	a := NewTenantAuthenticator(srv.URL, "bot@example.com", "secret", nil)
	_, err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "tenant disabled")
}

func TestAuthenticate_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := NewTenantAuthenticator(srv.URL, "bot@example.com", "secret", nil)
	_, err := a.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticate_BadExpiryStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"token":     "tok",
			"expiresAt": "whenever",
		})
	}))
	defer srv.Close()

	a := NewTenantAuthenticator(srv.URL, "bot@example.com", "secret", nil)
	cred, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", cred.Token)
	assert.True(t, cred.ExpiresAt.IsZero())
}
