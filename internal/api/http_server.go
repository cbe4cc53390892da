package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/conversation"
	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Inbox accepts gateway traffic for the conversation layer.
type Inbox interface {
	Receive(ctx context.Context, in conversation.Inbound) error
	Presence(tenantID int64, phone, presence string)
}

type WindowEditor interface {
	SetWindow(ctx context.Context, professionalID int64, weekday models.Weekday, times []string) error
	WindowsFor(ctx context.Context, professionalID int64, weekday models.Weekday) ([]string, error)
	Weekly(ctx context.Context, professionalID int64) (map[models.Weekday][]string, error)
}

type SlotFinder interface {
	ResolveDate(dateOrWeekday string) (time.Time, error)
	FreeSlots(ctx context.Context, professionalID int64, date time.Time) ([]time.Time, error)
	Location() *time.Location
}

type Canceler interface {
	Cancel(ctx context.Context, appointmentID int64) error
}

type ScheduleWriter interface {
	WriteSchedule(ctx context.Context, w io.Writer, tenantID int64, from, to time.Time) error
}

type SilenceStore interface {
	SetSilence(ctx context.Context, s *models.Silence) error
}

// Services bundles what the HTTP handlers call into.
type Services struct {
	Scheduler domain.SchedulingService
	Inbox     Inbox
	Windows   WindowEditor
	Slots     SlotFinder
	Ledger    Canceler
	Exporter  ScheduleWriter
	Silences  SilenceStore
	// Health reports storage readiness for /healthz.
	Health func(ctx context.Context) error
}

type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/webhook/{tenantID}", s.handleWebhook)
	mux.HandleFunc("POST /api/v1/availability/check", s.handleCheckAvailability)
	mux.HandleFunc("POST /api/v1/bookings/confirm", s.handleConfirmBooking)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", s.handleCancelAppointment)
	mux.HandleFunc("GET /api/v1/contacts/{tenantID}/{phone}/appointments", s.handleUpcoming)
	mux.HandleFunc("GET /api/v1/professionals/{id}/windows", s.handleWeekly)
	mux.HandleFunc("PUT /api/v1/professionals/{id}/windows/{weekday}", s.handleSetWindow)
	mux.HandleFunc("GET /api/v1/professionals/{id}/slots", s.handleFreeSlots)
	mux.HandleFunc("GET /api/v1/tenants/{id}/schedule.xlsx", s.handleScheduleExport)
	mux.HandleFunc("POST /api/v1/silences", s.handleSilence)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return Chain(mux,
		Recover(s.logger),
		RequestID,
		Logging(s.logger),
		Metrics,
		s.auth.Wrap,
	)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoSlots):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInactiveTenant):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "error_code": domain.ErrorCode(err)})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	return nil
}

// decodeLenient accepts unknown fields; used for third-party callbacks.
func decodeLenient(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	return nil
}
