package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotifier(cfg config.WhatsAppConfig) *WhatsAppNotifier {
	logger := zerolog.Nop()
	return NewWhatsAppNotifier(cfg, &logger)
}

func TestNotify(t *testing.T) {
	var got sendTextRequest
	var token, contentType, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		token = r.Header.Get("Client-Token")
		contentType = r.Header.Get("Content-Type")
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tenant := &models.Tenant{ID: 1, NotifyURL: srv.URL, NotifyToken: "secret"}
	err := newNotifier(config.WhatsAppConfig{}).Notify(context.Background(), tenant, "5511988887777", "Olá!")
	require.NoError(t, err)

	assert.Equal(t, "5511988887777", got.Phone)
	assert.Equal(t, "Olá!", got.Message)
	assert.Equal(t, "secret", token)
	assert.Equal(t, "application/json", contentType)
	assert.NotEmpty(t, requestID)
}

func TestNotify_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "instance disconnected", http.StatusBadGateway)
	}))
	defer srv.Close()

	tenant := &models.Tenant{ID: 1, NotifyURL: srv.URL}
	err := newNotifier(config.WhatsAppConfig{}).Notify(context.Background(), tenant, "5511988887777", "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "instance disconnected")
}

func TestNotify_NoGateway(t *testing.T) {
	err := newNotifier(config.WhatsAppConfig{}).Notify(context.Background(), &models.Tenant{ID: 1}, "5511988887777", "oi")
	assert.ErrorIs(t, err, ErrNoGateway)
}

func TestNotify_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := newNotifier(config.WhatsAppConfig{RPS: 0.001, Burst: 1})
	tenant := &models.Tenant{ID: 1, NotifyURL: srv.URL}

	require.NoError(t, n.Notify(context.Background(), tenant, "5511988887777", "um"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := n.Notify(ctx, tenant, "5511988887777", "dois")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// limiters are per tenant
	other := &models.Tenant{ID: 2, NotifyURL: srv.URL}
	require.NoError(t, n.Notify(context.Background(), other, "5511988887777", "três"))
}
