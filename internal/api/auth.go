package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"agendazap/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permWebhook          = "write:webhook"
	permReadAvailability = "read:availability"
	permWriteBookings    = "write:bookings"
	permReadAppointments = "read:appointments"
	permWriteWindows     = "write:windows"
	permReadExports      = "read:exports"
	permWriteSilences    = "write:silences"
	permAuthenticated    = "authenticated"
)

var (
	errMissingKey        = errors.New("missing api key headers")
	errInvalidKey        = errors.New("invalid api key")
	errInvalidExtra      = errors.New("invalid extra header")
	errPermissionDenied  = errors.New("permission denied")
	errRateLimitExceeded = errors.New("rate limit exceeded")
)

// HTTPAuth checks the API key pair, the key's permissions and its rate limit.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg.RateLimit)}
}

// Wrap guards next. Routes with no required permission (health, metrics)
// skip the key check but are still rate limited.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) headerNames() (string, string) {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	return apiKeyHeader, extraHeader
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}

	apiKeyHeader, extraHeader := a.headerNames()
	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}

	if required == permAuthenticated {
		return nil
	}
	return checkPermissions(client, required)
}

// checkPermissions treats an empty permission list as allow-all.
func checkPermissions(client config.APIClientKey, required string) error {
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/webhook/"):
		return permWebhook
	case strings.HasPrefix(path, "/api/v1/availability"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/bookings"):
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/appointments"):
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/contacts"):
		return permReadAppointments
	case strings.HasPrefix(path, "/api/v1/professionals/") && strings.Contains(path, "/windows/"):
		return permWriteWindows
	case strings.HasPrefix(path, "/api/v1/professionals/"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/tenants/"):
		return permReadExports
	case strings.HasPrefix(path, "/api/v1/silences"):
		return permWriteSilences
	case strings.HasPrefix(path, "/api/"):
		// unknown API routes still need a valid key
		return permAuthenticated
	default:
		return ""
	}
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if !a.limiter.enabled() {
		return nil
	}
	if !a.limiter.getLimiter(a.clientKey(r)).Allow() {
		return errRateLimitExceeded
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader, _ := a.headerNames()
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
