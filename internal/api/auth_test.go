package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentacar/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "web-key", Extra: "web-extra", Name: "booking-web"},
				{Key: "ro-key", Extra: "ro-extra", Name: "reporting", Permissions: []string{permContractsRead}},
			},
			JWT: config.JWTConfig{Secret: testSecret, Issuer: "backoffice"},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 100},
	}
}

func signToken(t *testing.T, claims staffClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) staffClaims {
	return staffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "backoffice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

// actorEcho reports the actor the auth layer attached.
func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"actor": actorFrom(r.Context())})
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPAuthAPIKey(t *testing.T) {
	h := NewHTTPAuth(authConfig()).Wrap(actorEcho())

	t.Run("Success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contracts?bookingId=1", nil)
		req.Header.Set("x-api-key", "web-key")
		req.Header.Set("x-api-extra", "web-extra")
		rec := serve(h, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "booking-web")
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/contracts?bookingId=1", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing credentials")
	})

	t.Run("InvalidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contracts", nil)
		req.Header.Set("x-api-key", "nope")
		req.Header.Set("x-api-extra", "web-extra")
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contracts", nil)
		req.Header.Set("x-api-key", "web-key")
		req.Header.Set("x-api-extra", "wrong")
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/contracts", nil)
		req.Header.Set("x-api-key", "ro-key")
		req.Header.Set("x-api-extra", "ro-extra")
		assert.Equal(t, http.StatusForbidden, serve(h, req).Code)

		req = httptest.NewRequest(http.MethodGet, "/contracts", nil)
		req.Header.Set("x-api-key", "ro-key")
		req.Header.Set("x-api-extra", "ro-extra")
		assert.Equal(t, http.StatusOK, serve(h, req).Code)
	})
}

func TestHTTPAuthJWT(t *testing.T) {
	h := NewHTTPAuth(authConfig()).Wrap(actorEcho())

	request := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/contracts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(h, req)
	}

	t.Run("Valid", func(t *testing.T) {
		rec := request(signToken(t, validClaims("maria.lopez"), testSecret))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "maria.lopez")
	})

	t.Run("WrongSecret", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, request(signToken(t, validClaims("x"), "other")).Code)
	})

	t.Run("Expired", func(t *testing.T) {
		claims := validClaims("x")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		assert.Equal(t, http.StatusUnauthorized, request(signToken(t, claims, testSecret)).Code)
	})

	t.Run("MissingExpiry", func(t *testing.T) {
		claims := validClaims("x")
		claims.ExpiresAt = nil
		assert.Equal(t, http.StatusUnauthorized, request(signToken(t, claims, testSecret)).Code)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		claims := validClaims("x")
		claims.Issuer = "someone-else"
		assert.Equal(t, http.StatusUnauthorized, request(signToken(t, claims, testSecret)).Code)
	})

	t.Run("MissingSubject", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, request(signToken(t, validClaims(""), testSecret)).Code)
	})

	t.Run("Permissions", func(t *testing.T) {
		claims := validClaims("auditor")
		claims.Permissions = []string{permContractsRead}
		assert.Equal(t, http.StatusForbidden, request(signToken(t, claims, testSecret)).Code)
	})
}

func TestHTTPAuthPublicPaths(t *testing.T) {
	h := NewHTTPAuth(authConfig()).Wrap(actorEcho())
	for _, path := range []string{"/inspeccion/abc", "/healthz", "/readyz"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHTTPAuthDisabled(t *testing.T) {
	h := NewHTTPAuth(config.APIConfig{}).Wrap(actorEcho())
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/contracts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"system"`)
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	h := NewHTTPAuth(cfg).Wrap(actorEcho())

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/contracts", nil)
		req.Header.Set("x-api-key", "web-key")
		req.Header.Set("x-api-extra", "web-extra")
		return req
	}
	assert.Equal(t, http.StatusOK, serve(h, newReq()).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, newReq()).Code)
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/contracts", permContractsRead},
		{http.MethodPost, "/contracts", permContractsWrite},
		{http.MethodGet, "/api/v1/contracts/history", permContractsRead},
		{http.MethodPost, "/api/v1/contracts/regenerate", permContractsWrite},
		{http.MethodGet, "/api/v1/contracts/export", permContractsExport},
		{http.MethodPost, "/api/v1/inspections", permInspectionsWrite},
		{http.MethodGet, "/unknown", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, requiredPermission(req), tt.method+" "+tt.path)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/contracts", nil)
	req.RemoteAddr = "10.0.0.5:41234"
	assert.Equal(t, "10.0.0.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "")
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))
	req.Header.Set("Authorization", "bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(req))
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, bearerToken(req))
}
