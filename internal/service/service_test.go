package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"agendazap/internal/database"
	"agendazap/internal/events"
	"agendazap/internal/models"
	"agendazap/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Brasília time without DST, so tests do not depend on the zoneinfo database.
var brt = time.FixedZone("BRT", -3*60*60)

// monday is 2030-01-07, far enough ahead that real-time TTLs in the state
// store never expire fixtures.
func monday(hour, minute int) time.Time {
	return time.Date(2030, time.January, 7, hour, minute, 0, 0, brt)
}

type taskRecorder struct {
	mu    sync.Mutex
	tasks []*models.Task
}

func (r *taskRecorder) EnqueueTask(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *taskRecorder) all() []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Task(nil), r.tasks...)
}

type fixture struct {
	ctx       context.Context
	db        *database.DB
	bus       *events.EventBus
	state     *repository.MemoryStateRepository
	tasks     *taskRecorder
	calendar  *Calendar
	resolver  *Resolver
	ledger    *Ledger
	pending   *Pending
	scheduler *Scheduler

	tenant *models.Tenant
	ana    *models.Professional
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		ctx:   context.Background(),
		db:    db,
		bus:   events.NewEventBus(),
		state: repository.NewMemoryStateRepository(models.DefaultRedisTTL),
		tasks: &taskRecorder{},
		now:   monday(7, 0),
	}
	clock := func() time.Time { return f.now }

	f.calendar = NewCalendar(db, &logger)
	f.resolver = NewResolver(f.calendar, db, brt, &logger)
	f.resolver.now = clock
	f.ledger = NewLedger(db, f.bus, &logger)
	f.ledger.now = clock
	f.pending = NewPending(f.state, 30*time.Minute, []string{"sim", "ok", "pode agendar", "claro", "confirmo"}, &logger)
	f.pending.now = clock
	f.scheduler = NewScheduler(db, f.resolver, f.ledger, f.pending, f.state, f.tasks, f.bus, DefaultTurnBands, &logger)

	f.tenant = &models.Tenant{
		Name:   "Clinica Vida",
		Active: true,
		Rules:  models.TenantRules{ReferralRequiredPlans: []string{"Unimed"}},
	}
	require.NoError(t, db.CreateTenant(f.ctx, f.tenant))

	f.ana = &models.Professional{TenantID: f.tenant.ID, Name: "Ána Souza", Phone: "5511900000001", Active: true}
	require.NoError(t, db.CreateProfessional(f.ctx, f.ana))

	return f
}

func (f *fixture) window(t *testing.T, prof *models.Professional, day models.Weekday, times ...string) {
	t.Helper()
	require.NoError(t, f.calendar.SetWindow(f.ctx, prof.ID, day, times))
}

func (f *fixture) contact(t *testing.T, phone string) *models.Contact {
	t.Helper()
	c, err := f.db.GetOrCreateContact(f.ctx, f.tenant.ID, phone, "")
	require.NoError(t, err)
	return c
}

func (f *fixture) book(t *testing.T, prof *models.Professional, phone string, at time.Time) *models.Appointment {
	t.Helper()
	c := f.contact(t, phone)
	a, err := f.ledger.Create(f.ctx, models.NewAppointment{
		TenantID:       f.tenant.ID,
		ProfessionalID: prof.ID,
		ContactID:      c.ID,
		ScheduledAt:    at,
	})
	require.NoError(t, err)
	return a
}
