package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agendazap/internal/conversation"
	"agendazap/internal/domain"
	"agendazap/internal/models"
)

// Gateway callback types.
const (
	callbackReceived = "ReceivedCallback"
	callbackPresence = "PresenceChatCallback"
)

type webhookText struct {
	Message string `json:"message"`
}

// webhookPayload follows the WhatsApp gateway's callback body.
type webhookPayload struct {
	Type       string       `json:"type"`
	Phone      string       `json:"phone"`
	FromMe     bool         `json:"fromMe"`
	IsGroup    bool         `json:"isGroup"`
	SenderName string       `json:"senderName"`
	Text       *webhookText `json:"text"`
	Status     string       `json:"status"`
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathID(r, "tenantID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// gateway callbacks carry many fields we do not read
	var body webhookPayload
	if err := decodeLenient(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	if body.FromMe || body.IsGroup || strings.TrimSpace(body.Phone) == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if body.Type == callbackPresence {
		s.svc.Inbox.Presence(tenantID, body.Phone, body.Status)
		writeJSON(w, http.StatusOK, map[string]string{"status": "presence"})
		return
	}

	if (body.Type != "" && body.Type != callbackReceived) || body.Text == nil || strings.TrimSpace(body.Text.Message) == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	in := conversation.Inbound{
		TenantID: tenantID,
		Phone:    body.Phone,
		Name:     body.SenderName,
		Text:     body.Text.Message,
		Kind:     models.KindText,
	}
	if err := s.svc.Inbox.Receive(r.Context(), in); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}

func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Scheduler.CheckAvailability(r.Context(), req))
}

type confirmRequest struct {
	TenantID int64                `json:"tenant_id"`
	Phone    string               `json:"phone"`
	Fallback *models.CheckRequest `json:"fallback,omitempty"`
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.TenantID <= 0 || strings.TrimSpace(req.Phone) == "" {
		s.fail(w, r, fmt.Errorf("%w: tenant_id and phone are required", domain.ErrValidation))
		return
	}
	if req.Fallback != nil {
		req.Fallback.TenantID = req.TenantID
		req.Fallback.ContactPhone = req.Phone
	}
	writeJSON(w, http.StatusOK, s.svc.Scheduler.ConfirmBooking(r.Context(), req.TenantID, req.Phone, req.Fallback))
}

func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Ledger.Cancel(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathID(r, "tenantID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	appts, err := s.svc.Scheduler.Upcoming(r.Context(), tenantID, r.PathValue("phone"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (s *HTTPServer) handleWeekly(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	weekly, err := s.svc.Windows.Weekly(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": weekly})
}

func (s *HTTPServer) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	weekday, err := models.ParseWeekday(r.PathValue("weekday"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	var body struct {
		Times []string `json:"times"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Windows.SetWindow(r.Context(), id, weekday, body.Times); err != nil {
		s.fail(w, r, err)
		return
	}
	// stored times are deduplicated and sorted
	stored, err := s.svc.Windows.WindowsFor(r.Context(), id, weekday)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weekday": weekday, "times": stored})
}

func (s *HTTPServer) handleFreeSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		s.fail(w, r, fmt.Errorf("%w: date is required", domain.ErrValidation))
		return
	}
	date, err := s.svc.Slots.ResolveDate(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	slots, err := s.svc.Slots.FreeSlots(r.Context(), id, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format(models.DateLayout), "slots": out})
}

func (s *HTTPServer) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	loc := s.svc.Slots.Location()
	from, err := parseDay(r.URL.Query().Get("from"), loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"), loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// render first so a failure can still answer with JSON
	var buf bytes.Buffer
	if err := s.svc.Exporter.WriteSchedule(r.Context(), &buf, tenantID, from, to); err != nil {
		s.fail(w, r, err)
		return
	}

	fileName := fmt.Sprintf("agenda_%d_%s_%s.xlsx", tenantID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: from and to are required", domain.ErrValidation)
	}
	day, err := time.ParseInLocation(models.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q; expected YYYY-MM-DD", domain.ErrValidation, raw)
	}
	return day, nil
}

type silenceRequest struct {
	TenantID int64  `json:"tenant_id"`
	Phone    string `json:"phone"`
	Minutes  int    `json:"minutes"`
}

func (s *HTTPServer) handleSilence(w http.ResponseWriter, r *http.Request) {
	var req silenceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.TenantID <= 0 || strings.TrimSpace(req.Phone) == "" || req.Minutes <= 0 {
		s.fail(w, r, fmt.Errorf("%w: tenant_id, phone and minutes are required", domain.ErrValidation))
		return
	}

	silence := &models.Silence{
		TenantID: req.TenantID,
		Phone:    strings.TrimSpace(req.Phone),
		Until:    time.Now().Add(time.Duration(req.Minutes) * time.Minute),
	}
	if err := s.svc.Silences.SetSilence(r.Context(), silence); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, silence)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
