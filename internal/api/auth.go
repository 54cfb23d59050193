package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"rentacar/internal/config"
	"rentacar/internal/contract"

	"github.com/golang-jwt/jwt/v5"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permContractsRead    = "contracts:read"
	permContractsWrite   = "contracts:write"
	permContractsExport  = "contracts:export"
	permInspectionsWrite = "inspections:write"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errInvalidToken       = errors.New("invalid token")
	errPermissionDenied   = errors.New("permission denied")
)

// identity is the authenticated caller: a back-office user (JWT) or an API client.
type identity struct {
	Name        string
	Permissions []string
}

type identityKey struct{}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// actorFrom names the caller for contract history; anonymous calls act as the system.
func actorFrom(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(identity); ok && id.Name != "" {
		return id.Name
	}
	return contract.SystemActor
}

// staffClaims are issued by the back-office login.
type staffClaims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// HTTPAuth authenticates requests with an API key pair or a bearer JWT and rate limits per caller.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
	secret  []byte
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{
		cfg:     cfg,
		clients: m,
		limiter: newRateLimiter(cfg.RateLimit),
		secret:  []byte(cfg.Auth.JWT.Secret),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			id, err := a.authenticate(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
			r = r.WithContext(withIdentity(r.Context(), id))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	return strings.HasPrefix(path, galleryPrefix) || path == "/healthz" || path == "/readyz"
}

func (a *HTTPAuth) authenticate(r *http.Request) (identity, error) {
	var (
		id  identity
		err error
	)
	if token := bearerToken(r); token != "" && len(a.secret) > 0 {
		id, err = a.parseToken(token)
	} else {
		id, err = a.checkAPIKey(r)
	}
	if err != nil {
		return identity{}, err
	}
	if err := checkPermissions(id, requiredPermission(r)); err != nil {
		return identity{}, err
	}
	return id, nil
}

func (a *HTTPAuth) checkAPIKey(r *http.Request) (identity, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return identity{}, errMissingCredentials
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return identity{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return identity{}, errInvalidExtra
	}

	name := client.Name
	if name == "" {
		name = "api"
	}
	return identity{Name: name, Permissions: client.Permissions}, nil
}

func (a *HTTPAuth) parseToken(raw string) (identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Auth.JWT.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Auth.JWT.Issuer))
	}

	claims := &staffClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || claims.Subject == "" {
		return identity{}, errInvalidToken
	}
	return identity{Name: claims.Subject, Permissions: claims.Permissions}, nil
}

// checkPermissions treats an empty permission list as allow-all.
func checkPermissions(id identity, required string) error {
	if required == "" || len(id.Permissions) == 0 {
		return nil
	}
	for _, p := range id.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	switch path := r.URL.Path; {
	case path == "/api/v1/contracts/export":
		return permContractsExport
	case path == "/api/v1/inspections":
		return permInspectionsWrite
	case path == "/api/v1/contracts/regenerate":
		return permContractsWrite
	case path == "/contracts" && r.Method == http.MethodPost:
		return permContractsWrite
	case path == "/contracts", path == "/api/v1/contracts/history":
		return permContractsRead
	default:
		return ""
	}
}

func (a *HTTPAuth) apiKeyHeader() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if id, ok := r.Context().Value(identityKey{}).(identity); ok && id.Name != "" {
		return id.Name
	}
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
