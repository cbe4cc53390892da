package dialogue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, handler http.HandlerFunc) *HTTPEngine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	engine, err := NewHTTPEngine(config.DialogueConfig{URL: server.URL + "/", APIKey: "token", Timeout: time.Second}, &logger)
	require.NoError(t, err)
	return engine
}

func TestHTTPEngineRespondWithAction(t *testing.T) {
	var seen Turn
	engine := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, respondPath, r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))

		_, _ = w.Write([]byte(`{"text":"","action":{"kind":"check_availability","request":{"professional_name":"Ana","date_or_weekday":"segunda","turn_preference":"tarde"}}}`))
	})

	reply, err := engine.Respond(context.Background(), Turn{TenantID: 1, Phone: "5511988887777", Text: "quero segunda a tarde com a Ana"})
	require.NoError(t, err)
	require.NotNil(t, reply.Action)
	assert.Equal(t, ActionCheckAvailability, reply.Action.Kind)
	assert.Equal(t, "Ana", reply.Action.Request.ProfessionalName)
	assert.Equal(t, "tarde", reply.Action.Request.TurnPreference)

	assert.Equal(t, int64(1), seen.TenantID)
	assert.Equal(t, "quero segunda a tarde com a Ana", seen.Text)
	assert.Nil(t, seen.Result)
}

func TestHTTPEngineSendsResultOnSecondRound(t *testing.T) {
	var seen Turn
	engine := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_, _ = w.Write([]byte(`{"text":"Encontrei um horario. Posso confirmar?"}`))
	})

	reply, err := engine.Respond(context.Background(), Turn{
		TenantID: 1,
		Phone:    "5511988887777",
		Result:   &models.Result{Status: models.StatusAvailable, ProfessionalName: "Ana"},
	})
	require.NoError(t, err)
	assert.Nil(t, reply.Action)
	assert.Equal(t, "Encontrei um horario. Posso confirmar?", reply.Text)
	require.NotNil(t, seen.Result)
	assert.Equal(t, models.StatusAvailable, seen.Result.Status)
}

func TestHTTPEngineErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		engine := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := engine.Respond(context.Background(), Turn{TenantID: 1, Phone: "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("unknown action", func(t *testing.T) {
		engine := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"action":{"kind":"delete_everything"}}`))
		})
		_, err := engine.Respond(context.Background(), Turn{TenantID: 1, Phone: "1"})
		require.Error(t, err)
	})

	t.Run("missing phone", func(t *testing.T) {
		engine := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("must not be called")
		})
		_, err := engine.Respond(context.Background(), Turn{TenantID: 1})
		require.Error(t, err)
	})
}

func TestNewHTTPEngineRequiresURL(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewHTTPEngine(config.DialogueConfig{}, &logger)
	require.Error(t, err)
}
