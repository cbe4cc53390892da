// Package conversation turns inbound WhatsApp traffic into scheduling calls
// and replies.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"agendazap/internal/config"
	"agendazap/internal/dialogue"
	"agendazap/internal/domain"
	"agendazap/internal/events"
	"agendazap/internal/metrics"
	"agendazap/internal/models"
	"agendazap/internal/textnorm"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	historyLimit = 10
	agendaDays   = 7
)

var nameIntros = []string{"me chamo ", "meu nome e ", "sou "}

// words that follow "sou" without being a name
var notNames = map[string]bool{
	"eu": true, "paciente": true, "cliente": true, "novo": true, "nova": true,
	"de": true, "do": true, "da": true, "um": true, "uma": true,
}

// Inbound is one message as delivered by the WhatsApp gateway webhook.
type Inbound struct {
	TenantID int64
	Phone    string
	Name     string
	Text     string
	Kind     string
}

type Handler struct {
	repo      domain.Repository
	scheduler domain.SchedulingService
	engine    dialogue.Engine
	state     domain.StateRepository
	tasks     domain.TaskEnqueuer
	eventBus  domain.EventPublisher
	cfg       config.SchedulingConfig
	loc       *time.Location
	debouncer *Debouncer
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewHandler(
	repo domain.Repository,
	scheduler domain.SchedulingService,
	engine dialogue.Engine,
	state domain.StateRepository,
	tasks domain.TaskEnqueuer,
	eventBus domain.EventPublisher,
	cfg config.SchedulingConfig,
	loc *time.Location,
	logger *zerolog.Logger,
) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		repo:      repo,
		scheduler: scheduler,
		engine:    engine,
		state:     state,
		tasks:     tasks,
		eventBus:  eventBus,
		cfg:       cfg,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
	h.debouncer = NewDebouncer(cfg.DebounceWindow, cfg.Workers, h.Process, logger)
	return h
}

// Close stops buffering and waits for in-flight replies.
func (h *Handler) Close() {
	h.debouncer.Close()
}

// Receive records the message and queues it for a reply. Messages for an
// inactive tenant or a silenced phone are recorded and nothing else.
func (h *Handler) Receive(ctx context.Context, in Inbound) error {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.TenantID <= 0 || in.Phone == "" {
		return fmt.Errorf("%w: tenant and phone are required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil
	}

	msg := &models.Message{
		TenantID:  in.TenantID,
		Phone:     in.Phone,
		Direction: models.DirectionIn,
		Body:      in.Text,
		Kind:      in.Kind,
	}
	if err := h.repo.SaveMessage(ctx, msg); err != nil {
		return err
	}
	metrics.IncMessage(models.DirectionIn)

	log := h.logger.With().Str("conversation", models.ConversationKey(in.TenantID, in.Phone)).Logger()

	tenant, err := h.repo.GetTenant(ctx, in.TenantID)
	if err != nil {
		return err
	}
	if !tenant.Active {
		log.Info().Msg("Tenant inactive, message only recorded")
		return nil
	}

	silence, err := h.repo.GetActiveSilence(ctx, in.TenantID, in.Phone, h.now())
	if err != nil {
		return err
	}
	if silence != nil {
		log.Debug().Time("until", silence.Until).Msg("Assistant silenced")
		return nil
	}

	h.learnName(ctx, in, &log)

	allowed, err := h.state.CheckRateLimit(ctx, models.ConversationKey(in.TenantID, in.Phone), h.cfg.RateLimitMessages, h.cfg.RateLimitWindow)
	if err != nil {
		log.Warn().Err(err).Msg("Rate limit check failed")
	} else if !allowed {
		log.Warn().Msg("Rate limit exceeded, message not answered")
		return nil
	}

	h.debouncer.Add(in.TenantID, in.Phone, in.Name, in.Text)
	return nil
}

// Presence forwards a typing indicator to the debouncer.
func (h *Handler) Presence(tenantID int64, phone, presence string) {
	h.debouncer.Touch(tenantID, strings.TrimSpace(phone), strings.ToLower(presence))
}

// Process answers one flushed batch. It is the debouncer's flush function
// and never returns an error: every failure degrades to the generic reply.
func (h *Handler) Process(ctx context.Context, batch Batch) {
	log := h.logger.With().Str("conversation", batch.Key()).Logger()

	tenant, err := h.repo.GetTenant(ctx, batch.TenantID)
	if err != nil || !tenant.Active {
		log.Warn().Err(err).Msg("Dropping batch for unavailable tenant")
		return
	}

	reply := h.decide(ctx, batch, &log)
	if strings.TrimSpace(reply) == "" {
		reply = h.cfg.GenericReply
	}
	h.send(ctx, batch.TenantID, batch.Phone, reply, &log)
}

func (h *Handler) decide(ctx context.Context, batch Batch, log *zerolog.Logger) string {
	text := batch.Text()

	switch {
	case textnorm.ContainsAny(text, h.cfg.AffirmativeTokens) && h.scheduler.HasPendingProposal(ctx, batch.TenantID, batch.Phone):
		res := h.scheduler.ConfirmBooking(ctx, batch.TenantID, batch.Phone, nil)
		return formatResult(res, h.loc, h.cfg.GenericReply)

	case textnorm.ContainsAny(text, h.cfg.CancelTokens):
		res := h.scheduler.CancelNext(ctx, batch.TenantID, batch.Phone)
		if res.Status != models.StatusCanceled && res.ErrorCode == domain.CodeNotFound {
			return "Não encontrei agendamentos futuros para cancelar."
		}
		return formatResult(res, h.loc, h.cfg.GenericReply)

	case textnorm.ContainsAny(text, h.cfg.UpcomingTokens):
		return h.listing(ctx, batch, log)
	}

	return h.converse(ctx, batch, log)
}

func (h *Handler) listing(ctx context.Context, batch Batch, log *zerolog.Logger) string {
	if _, err := h.repo.GetProfessionalByPhone(ctx, batch.TenantID, batch.Phone); err == nil {
		from := h.now()
		appts, err := h.scheduler.ProfessionalAgenda(ctx, batch.TenantID, batch.Phone, from, from.AddDate(0, 0, agendaDays))
		if err != nil {
			log.Error().Err(err).Msg("Failed to load professional agenda")
			return h.cfg.GenericReply
		}
		return formatAgenda(appts, h.loc)
	}

	appts, err := h.scheduler.Upcoming(ctx, batch.TenantID, batch.Phone)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load upcoming appointments")
		return h.cfg.GenericReply
	}
	return formatUpcoming(appts, h.loc)
}

// converse lets the dialogue engine read the text. When it asks for an
// action the scheduling core runs it and the engine gets a second round to
// phrase the result.
func (h *Handler) converse(ctx context.Context, batch Batch, log *zerolog.Logger) string {
	if h.engine == nil {
		return h.cfg.GenericReply
	}

	turn := h.turnFor(ctx, batch)
	reply, err := h.engine.Respond(ctx, turn)
	if err != nil {
		log.Error().Err(err).Msg("Dialogue engine failed")
		return h.cfg.GenericReply
	}
	if reply.Action == nil {
		return reply.Text
	}

	req := reply.Action.Request
	req.TenantID = batch.TenantID
	req.ContactPhone = batch.Phone
	if req.ContactName == "" {
		req.ContactName = turn.ContactName
	}

	var res models.Result
	switch reply.Action.Kind {
	case dialogue.ActionCheckAvailability:
		res = h.scheduler.CheckAvailability(ctx, req)
	case dialogue.ActionBook:
		res = h.scheduler.ConfirmBooking(ctx, batch.TenantID, batch.Phone, &req)
	default:
		log.Warn().Str("kind", reply.Action.Kind).Msg("Unknown dialogue action")
		return h.cfg.GenericReply
	}
	log.Info().Str("action", reply.Action.Kind).Str("status", res.Status).Str("error_code", res.ErrorCode).Msg("Dialogue action handled")

	turn.Result = &res
	second, err := h.engine.Respond(ctx, turn)
	if err != nil || strings.TrimSpace(second.Text) == "" {
		if err != nil {
			log.Warn().Err(err).Msg("Dialogue engine failed to phrase result")
		}
		return formatResult(res, h.loc, h.cfg.GenericReply)
	}
	return second.Text
}

func (h *Handler) turnFor(ctx context.Context, batch Batch) dialogue.Turn {
	turn := dialogue.Turn{
		TenantID:    batch.TenantID,
		Phone:       batch.Phone,
		ContactName: batch.Name,
		Text:        batch.Text(),
	}

	if contact, err := h.repo.GetContactByPhone(ctx, batch.TenantID, batch.Phone); err == nil && contact.HasLearnedName() {
		turn.ContactName = contact.Name
	}

	if profs, err := h.repo.GetProfessionalsByTenant(ctx, batch.TenantID); err == nil {
		for _, p := range profs {
			if p.Active {
				turn.Professionals = append(turn.Professionals, p.Name)
			}
		}
	}

	if msgs, err := h.repo.GetRecentMessages(ctx, batch.TenantID, batch.Phone, historyLimit); err == nil {
		for _, m := range msgs {
			role := "user"
			if m.Direction == models.DirectionOut {
				role = "assistant"
			}
			turn.History = append(turn.History, dialogue.HistoryEntry{Role: role, Text: m.Body})
		}
	}
	return turn
}

// send records the reply and hands it to the outbox.
func (h *Handler) send(ctx context.Context, tenantID int64, phone, text string, log *zerolog.Logger) {
	out := &models.Message{
		TenantID:  tenantID,
		Phone:     phone,
		Direction: models.DirectionOut,
		Body:      text,
		Kind:      models.KindText,
	}
	if err := h.repo.SaveMessage(ctx, out); err != nil {
		log.Error().Err(err).Msg("Failed to record reply")
	}

	if h.tasks == nil {
		return
	}
	payload, err := json.Marshal(models.NotifyPayload{Phone: phone, Text: text})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode reply")
		return
	}
	task := &models.Task{TaskType: models.TaskNotify, TenantID: tenantID, Payload: string(payload)}
	if err := h.tasks.EnqueueTask(ctx, task); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue reply")
	}
}

func (h *Handler) learnName(ctx context.Context, in Inbound, log *zerolog.Logger) {
	name, ok := ExtractName(in.Text)
	if !ok {
		return
	}
	contact, err := h.repo.GetOrCreateContact(ctx, in.TenantID, in.Phone, "")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load contact")
		return
	}
	if contact.Name == name {
		return
	}
	if err := h.repo.UpdateContactName(ctx, contact.ID, name); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to update contact name")
		}
		return
	}
	if h.eventBus != nil {
		payload := events.ContactEventPayload{TenantID: in.TenantID, ContactID: contact.ID, Phone: in.Phone, Name: name}
		if err := h.eventBus.PublishJSON(events.EventContactNamed, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to publish contact named")
		}
	}
	log.Info().Str("name", name).Msg("Contact name learned")
}

// ExtractName finds the first name in "me chamo Maria" or "sou a Maria"
// style introductions.
func ExtractName(text string) (string, bool) {
	folded := textnorm.Normalize(text)
	original := strings.Fields(text)

	for _, intro := range nameIntros {
		if !strings.HasPrefix(folded, intro) {
			continue
		}
		skip := len(strings.Fields(intro))
		if len(original) <= skip {
			return "", false
		}
		word := original[skip]
		if textnorm.Normalize(word) == "a" || textnorm.Normalize(word) == "o" {
			if len(original) <= skip+1 {
				return "", false
			}
			word = original[skip+1]
		}
		word = strings.TrimRight(word, ".,!?;:")
		if word == "" || notNames[textnorm.Normalize(word)] {
			return "", false
		}
		for _, r := range word {
			if !unicode.IsLetter(r) {
				return "", false
			}
		}
		// a Caser keeps state between calls and cannot be shared
		return cases.Title(language.BrazilianPortuguese).String(word), true
	}
	return "", false
}
