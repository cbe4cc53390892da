package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"agendazap/internal/config"

	"github.com/stretchr/testify/assert"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "gateway", Extra: "g-extra", Name: "zapi", Permissions: []string{permWebhook}},
				{Key: "admin", Extra: "a-extra", Name: "admin"},
			},
		},
	}
}

func request(method, path, key, extra string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if extra != "" {
		req.Header.Set("X-API-Extra", extra)
	}
	return req
}

func TestHTTPAuth(t *testing.T) {
	auth := NewHTTPAuth(authConfig())
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{"missing key", request(http.MethodPost, "/api/v1/webhook/1", "", ""), http.StatusUnauthorized},
		{"unknown key", request(http.MethodPost, "/api/v1/webhook/1", "nope", "x"), http.StatusUnauthorized},
		{"wrong extra", request(http.MethodPost, "/api/v1/webhook/1", "gateway", "bad"), http.StatusUnauthorized},
		{"permitted", request(http.MethodPost, "/api/v1/webhook/1", "gateway", "g-extra"), http.StatusTeapot},
		{"denied", request(http.MethodDelete, "/api/v1/appointments/1", "gateway", "g-extra"), http.StatusForbidden},
		{"allow all", request(http.MethodDelete, "/api/v1/appointments/1", "admin", "a-extra"), http.StatusTeapot},
		{"unknown api route", request(http.MethodGet, "/api/v2/anything", "gateway", "g-extra"), http.StatusTeapot},
		{"health is open", request(http.MethodGet, "/healthz", "", ""), http.StatusTeapot},
		{"metrics is open", request(http.MethodGet, "/metrics", "", ""), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequiredPermission(t *testing.T) {
	cases := map[string]string{
		"/api/v1/webhook/1":                      permWebhook,
		"/api/v1/availability/check":             permReadAvailability,
		"/api/v1/bookings/confirm":               permWriteBookings,
		"/api/v1/appointments/9":                 permWriteBookings,
		"/api/v1/contacts/1/5511/appointments":   permReadAppointments,
		"/api/v1/professionals/3/windows/monday": permWriteWindows,
		"/api/v1/professionals/3/windows":        permReadAvailability,
		"/api/v1/professionals/3/slots":          permReadAvailability,
		"/api/v1/tenants/1/schedule.xlsx":        permReadExports,
		"/api/v1/silences":                       permWriteSilences,
		"/healthz":                               "",
	}
	for path, want := range cases {
		assert.Equal(t, want, requiredPermission(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	handler := NewHTTPAuth(cfg).Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request(http.MethodPost, "/api/v1/webhook/1", "gateway", "g-extra"))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different key gets its own bucket
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(http.MethodDelete, "/api/v1/appointments/1", "admin", "a-extra"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
