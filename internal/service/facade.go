package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/events"
	"agendazap/internal/metrics"
	"agendazap/internal/models"
	"agendazap/internal/textnorm"

	"github.com/rs/zerolog"
)

const slotDisplayLayout = "02/01/2006 às 15:04"

// Scheduler answers the two requests of the dialogue engine, checking
// availability and confirming a booking, plus the cancel and listing
// shortcuts handled without it.
type Scheduler struct {
	repo     domain.Repository
	resolver *Resolver
	ledger   *Ledger
	pending  *Pending
	state    domain.StateRepository
	tasks    domain.TaskEnqueuer
	eventBus domain.EventPublisher
	bands    TurnBands
	logger   *zerolog.Logger
}

func NewScheduler(
	repo domain.Repository,
	resolver *Resolver,
	ledger *Ledger,
	pending *Pending,
	state domain.StateRepository,
	tasks domain.TaskEnqueuer,
	eventBus domain.EventPublisher,
	bands TurnBands,
	logger *zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		repo:     repo,
		resolver: resolver,
		ledger:   ledger,
		pending:  pending,
		state:    state,
		tasks:    tasks,
		eventBus: eventBus,
		bands:    bands,
		logger:   logger,
	}
}

// CheckAvailability resolves the request to the best free slot and keeps it
// as the conversation's pending proposal.
func (s *Scheduler) CheckAvailability(ctx context.Context, req models.CheckRequest) models.Result {
	start := time.Now()
	defer func() { metrics.ObserveOperation("check_availability", time.Since(start).Seconds()) }()

	key := models.ConversationKey(req.TenantID, req.ContactPhone)
	log := s.logger.With().Str("conversation", key).Logger()

	result, err := s.checkAvailability(ctx, req)
	if err != nil {
		s.advance(ctx, key, EventCheckedUnavailable)
		metrics.IncCheck(models.StatusUnavailable)
		log.Info().Err(err).Str("professional", req.ProfessionalName).Msg("No slot proposed")
		return failure(err)
	}

	s.advance(ctx, key, EventCheckedAvailable)
	metrics.IncCheck(models.StatusAvailable)
	log.Info().Time("slot", *result.Slot).Bool("off_turn", result.OffTurn).Msg("Slot proposed")
	return result
}

func (s *Scheduler) checkAvailability(ctx context.Context, req models.CheckRequest) (models.Result, error) {
	if strings.TrimSpace(req.ContactPhone) == "" {
		return models.Result{}, fmt.Errorf("%w: contact_phone is required", domain.ErrValidation)
	}

	tenant, err := s.activeTenant(ctx, req.TenantID)
	if err != nil {
		return models.Result{}, err
	}

	prof, err := s.findProfessional(ctx, req.TenantID, req.ProfessionalName)
	if err != nil {
		return models.Result{}, err
	}

	slot, offTurn, err := s.resolve(ctx, prof, req)
	if err != nil {
		return models.Result{}, err
	}

	if err := s.propose(ctx, prof, slot, req, offTurn); err != nil {
		return models.Result{}, err
	}

	result := models.Result{
		Status:           models.StatusAvailable,
		Slot:             &slot,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		OffTurn:          offTurn,
	}
	if tenant.Rules.RequiresReferral(req.InsurancePlan) {
		result.Notes = append(result.Notes, fmt.Sprintf("O convênio %s exige pedido médico para este atendimento.", req.InsurancePlan))
	}
	return result, nil
}

// ConfirmBooking books the conversation's pending proposal. Without one it
// resolves fallback afresh. When the slot was taken in the meantime a new
// proposal is stored and returned with status conflict; nothing is booked
// until the contact confirms again.
func (s *Scheduler) ConfirmBooking(ctx context.Context, tenantID int64, phone string, fallback *models.CheckRequest) models.Result {
	start := time.Now()
	defer func() { metrics.ObserveOperation("confirm_booking", time.Since(start).Seconds()) }()

	key := models.ConversationKey(tenantID, phone)
	log := s.logger.With().Str("conversation", key).Logger()

	if _, err := s.activeTenant(ctx, tenantID); err != nil {
		return s.confirmFailed(ctx, key, err)
	}

	proposal, err := s.pending.Consume(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("failed to read pending proposal")
		return s.confirmFailed(ctx, key, err)
	}

	var prof *models.Professional
	if proposal == nil {
		s.expireIfProposed(ctx, tenantID, phone)
		if fallback == nil {
			return s.confirmFailed(ctx, key, fmt.Errorf("%w: nothing to confirm", domain.ErrNotFound))
		}
		req := *fallback
		req.TenantID = tenantID
		if req.ContactPhone == "" {
			req.ContactPhone = phone
		}
		prof, err = s.findProfessional(ctx, tenantID, req.ProfessionalName)
		if err != nil {
			return s.confirmFailed(ctx, key, err)
		}
		slot, _, err := s.resolve(ctx, prof, req)
		if err != nil {
			return s.confirmFailed(ctx, key, err)
		}
		log.Info().Time("slot", slot).Msg("No pending proposal, resolved fallback request")
		proposal = &models.Proposal{
			TenantID:         tenantID,
			Phone:            phone,
			ProfessionalID:   prof.ID,
			ProfessionalName: prof.Name,
			Slot:             slot,
			Request:          req,
		}
	} else {
		prof, err = s.repo.GetProfessional(ctx, proposal.ProfessionalID)
		if err == nil && !prof.Active {
			err = fmt.Errorf("%w: professional %d is inactive", domain.ErrNotFound, prof.ID)
		}
		if err != nil {
			return s.confirmFailed(ctx, key, err)
		}
	}

	contact, err := s.contactFor(ctx, tenantID, phone, proposal.Request.ContactName)
	if err != nil {
		return s.confirmFailed(ctx, key, err)
	}

	appt, err := s.ledger.Create(ctx, models.NewAppointment{
		TenantID:       tenantID,
		ProfessionalID: prof.ID,
		ContactID:      contact.ID,
		ScheduledAt:    proposal.Slot,
		Notes:          notesFor(proposal.Request),
	})
	if errors.Is(err, domain.ErrConflict) {
		metrics.IncBooking(models.StatusConflict)
		log.Warn().Time("slot", proposal.Slot).Msg("Slot taken before confirmation, re-proposing")
		return s.repropose(ctx, key, prof, proposal)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to create appointment")
		return s.confirmFailed(ctx, key, err)
	}

	s.advance(ctx, key, EventBooked)
	metrics.IncBooking(models.StatusBooked)

	when := appt.ScheduledAt.In(s.resolver.Location())
	s.notify(ctx, tenantID, appt.ID, phone,
		fmt.Sprintf("Agendamento confirmado com %s em %s.", prof.Name, when.Format(slotDisplayLayout)))
	if prof.Phone != "" {
		s.notify(ctx, tenantID, appt.ID, prof.Phone,
			fmt.Sprintf("Novo agendamento: %s em %s.", contact.Name, when.Format(slotDisplayLayout)))
	}

	return models.Result{
		Status:           models.StatusBooked,
		Slot:             &when,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		AppointmentID:    appt.ID,
	}
}

// repropose resolves the original request again after a lost race. The lost
// slot is now booked, so the resolver cannot offer it twice.
func (s *Scheduler) repropose(ctx context.Context, key string, prof *models.Professional, lost *models.Proposal) models.Result {
	slot, offTurn, err := s.resolve(ctx, prof, lost.Request)
	if err != nil {
		return s.confirmFailed(ctx, key, err)
	}
	if err := s.propose(ctx, prof, slot, lost.Request, offTurn); err != nil {
		return s.confirmFailed(ctx, key, err)
	}

	s.advance(ctx, key, EventConflict)
	return models.Result{
		Status:           models.StatusConflict,
		Slot:             &slot,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		ErrorCode:        domain.CodeConflict,
		OffTurn:          offTurn,
	}
}

func (s *Scheduler) confirmFailed(ctx context.Context, key string, err error) models.Result {
	s.advance(ctx, key, EventFailed)
	metrics.IncBooking(models.StatusUnavailable)
	return failure(err)
}

// expireIfProposed records that a proposal the session still remembers has
// lapsed.
func (s *Scheduler) expireIfProposed(ctx context.Context, tenantID int64, phone string) {
	key := models.ConversationKey(tenantID, phone)
	session, err := s.state.GetSession(ctx, key)
	if err != nil || session == nil || ConversationState(session.State) != StateProposed {
		return
	}
	s.advance(ctx, key, EventExpired)
	s.publish(events.EventProposalExpired, events.ProposalEventPayload{TenantID: tenantID, Phone: phone})
}

// CancelNext cancels the contact's next upcoming appointment.
func (s *Scheduler) CancelNext(ctx context.Context, tenantID int64, phone string) models.Result {
	if _, err := s.activeTenant(ctx, tenantID); err != nil {
		return failure(err)
	}

	appt, err := s.ledger.CancelNextFor(ctx, tenantID, phone)
	if err != nil {
		return failure(err)
	}
	metrics.IncCancel()

	when := appt.ScheduledAt.In(s.resolver.Location())
	if prof, err := s.repo.GetProfessional(ctx, appt.ProfessionalID); err == nil && prof.Phone != "" {
		s.notify(ctx, tenantID, appt.ID, prof.Phone,
			fmt.Sprintf("Agendamento cancelado: %s em %s.", appt.ContactName, when.Format(slotDisplayLayout)))
	}

	return models.Result{
		Status:           models.StatusCanceled,
		Slot:             &when,
		ProfessionalID:   appt.ProfessionalID,
		ProfessionalName: appt.ProfessionalName,
		AppointmentID:    appt.ID,
	}
}

// Upcoming lists the contact's future appointments. An unknown phone has
// none.
func (s *Scheduler) Upcoming(ctx context.Context, tenantID int64, phone string) ([]*models.Appointment, error) {
	contact, err := s.repo.GetContactByPhone(ctx, tenantID, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return []*models.Appointment{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.ledger.UpcomingFor(ctx, contact.ID)
}

// ProfessionalAgenda returns the agenda of the professional who owns phone.
// domain.ErrNotFound means phone is not a professional of the tenant.
func (s *Scheduler) ProfessionalAgenda(ctx context.Context, tenantID int64, phone string, from, to time.Time) ([]*models.Appointment, error) {
	prof, err := s.repo.GetProfessionalByPhone(ctx, tenantID, phone)
	if err != nil {
		return nil, err
	}
	return s.ledger.ScheduleFor(ctx, prof.ID, from, to)
}

func (s *Scheduler) HasPendingProposal(ctx context.Context, tenantID int64, phone string) bool {
	p, err := s.pending.Peek(ctx, models.ConversationKey(tenantID, phone))
	if err != nil {
		s.logger.Error().Err(err).Int64("tenant_id", tenantID).Msg("failed to peek pending proposal")
		return false
	}
	return p != nil
}

func (s *Scheduler) activeTenant(ctx context.Context, tenantID int64) (*models.Tenant, error) {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, fmt.Errorf("%w: %d", domain.ErrInactiveTenant, tenantID)
	}
	return tenant, nil
}

// findProfessional matches name against the tenant's active professionals
// ignoring case and accents. A full-name match wins; otherwise a name
// contained as whole words in exactly one professional's name ("Ana" for
// "Ana Souza") is accepted.
func (s *Scheduler) findProfessional(ctx context.Context, tenantID int64, name string) (*models.Professional, error) {
	if textnorm.Normalize(name) == "" {
		return nil, fmt.Errorf("%w: professional_name is required", domain.ErrValidation)
	}

	all, err := s.repo.GetProfessionalsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var partial []*models.Professional
	for _, p := range all {
		if !p.Active {
			continue
		}
		if textnorm.Equal(p.Name, name) {
			return p, nil
		}
		if textnorm.ContainsPhrase(p.Name, name) {
			partial = append(partial, p)
		}
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	return nil, fmt.Errorf("%w: professional %q", domain.ErrNotFound, name)
}

// resolve picks the best free slot for req. A weekday request that lands on
// today with nothing left moves on to the same weekday next week.
func (s *Scheduler) resolve(ctx context.Context, prof *models.Professional, req models.CheckRequest) (time.Time, bool, error) {
	date, err := s.resolver.ResolveDate(req.DateOrWeekday)
	if err != nil {
		return time.Time{}, false, err
	}
	turn, err := models.ParseTurn(req.TurnPreference)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	var exact *models.TimeOfDay
	if strings.TrimSpace(req.ExactTime) != "" {
		tod, err := models.ParseTimeOfDay(req.ExactTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		exact = &tod
	}

	slots, err := s.resolver.FreeSlots(ctx, prof.ID, date)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(slots) == 0 && s.isWeekday(req.DateOrWeekday) && s.resolver.RollForward(date).Equal(s.resolver.Today()) {
		slots, err = s.resolver.FreeSlots(ctx, prof.ID, date.AddDate(0, 0, 7))
		if err != nil {
			return time.Time{}, false, err
		}
	}

	slot, offTurn, ok := s.bands.RankByTurn(slots, turn, exact)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: %s on %s", domain.ErrNoSlots, prof.Name, date.Format(models.DateLayout))
	}
	return slot, offTurn, nil
}

func (s *Scheduler) isWeekday(dateOrWeekday string) bool {
	_, err := models.ParseWeekday(dateOrWeekday)
	return err == nil
}

func (s *Scheduler) propose(ctx context.Context, prof *models.Professional, slot time.Time, req models.CheckRequest, offTurn bool) error {
	key := models.ConversationKey(req.TenantID, req.ContactPhone)

	exchange := 0
	if session, err := s.state.GetSession(ctx, key); err == nil && session != nil {
		exchange = session.Exchange
	}

	proposal := &models.Proposal{
		TenantID:         req.TenantID,
		Phone:            req.ContactPhone,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		Slot:             slot,
		Request:          req,
		Exchange:         exchange + 1,
	}
	if err := s.pending.Propose(ctx, key, proposal); err != nil {
		return fmt.Errorf("failed to store proposal: %w", err)
	}

	s.publish(events.EventProposalMade, events.ProposalEventPayload{
		TenantID:         req.TenantID,
		Phone:            req.ContactPhone,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		Slot:             slot,
		OffTurn:          offTurn,
	})
	return nil
}

func (s *Scheduler) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

// advance moves the session along the state machine. An impossible
// transition is logged and the session restarts from no_proposal.
func (s *Scheduler) advance(ctx context.Context, key string, event StateEvent) {
	session, err := s.state.GetSession(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation", key).Msg("failed to load session")
	}
	if session == nil {
		session = &models.Session{Key: key, State: string(StateNoProposal)}
	}

	next, err := Next(ConversationState(session.State), event)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", key).Msg("Resetting conversation state")
		next = StateNoProposal
	}

	session.State = string(next)
	session.Exchange++
	session.UpdatedAt = time.Now()
	if err := s.state.SetSession(ctx, session); err != nil {
		s.logger.Error().Err(err).Str("conversation", key).Msg("failed to save session")
	}
}

// State returns the conversation's current state.
func (s *Scheduler) State(ctx context.Context, tenantID int64, phone string) ConversationState {
	session, err := s.state.GetSession(ctx, models.ConversationKey(tenantID, phone))
	if err != nil || session == nil {
		return StateNoProposal
	}
	return ConversationState(session.State)
}

// contactFor returns the contact, learning its name if it still holds the
// phone placeholder.
func (s *Scheduler) contactFor(ctx context.Context, tenantID int64, phone, name string) (*models.Contact, error) {
	contact, err := s.repo.GetOrCreateContact(ctx, tenantID, phone, name)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name != "" && !contact.HasLearnedName() {
		if err := s.repo.UpdateContactName(ctx, contact.ID, name); err != nil {
			s.logger.Error().Err(err).Int64("contact_id", contact.ID).Msg("failed to update contact name")
		} else {
			contact.Name = name
		}
	}
	return contact, nil
}

// notify enqueues a WhatsApp message on the outbox. Failures are logged and
// never undo the booking.
func (s *Scheduler) notify(ctx context.Context, tenantID, appointmentID int64, phone, text string) {
	if s.tasks == nil {
		return
	}
	payload, err := json.Marshal(models.NotifyPayload{Phone: phone, Text: text})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal notify payload")
		return
	}
	task := &models.Task{
		TaskType:      models.TaskNotify,
		TenantID:      tenantID,
		AppointmentID: appointmentID,
		Payload:       string(payload),
	}
	if err := s.tasks.EnqueueTask(ctx, task); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", appointmentID).Msg("failed to enqueue notification")
	}
}

func notesFor(req models.CheckRequest) string {
	var parts []string
	if req.ServiceType != "" {
		parts = append(parts, "serviço: "+req.ServiceType)
	}
	if req.InsurancePlan != "" {
		parts = append(parts, "convênio: "+req.InsurancePlan)
	}
	return strings.Join(parts, "; ")
}

func failure(err error) models.Result {
	return models.Result{
		Status:    models.StatusUnavailable,
		ErrorCode: domain.ErrorCode(err),
		Error:     err.Error(),
	}
}
