package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/domain"
	"agendazap/internal/events"
	"agendazap/internal/metrics"
	"agendazap/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskStore persists outbox tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	ClaimTask(ctx context.Context, id int64) (bool, error)
	UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetPendingTasks(ctx context.Context, now time.Time, limit int) ([]models.Task, error)
}

// TenantSource resolves the tenant whose gateway sends a notification.
type TenantSource interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
}

// sheetsPayload is the payload of sheets_* tasks.
type sheetsPayload struct {
	Appointment *models.Appointment `json:"appointment,omitempty"`
}

var errPermanent = errors.New("permanent task failure")

// TaskWorker is the outbox: tasks are stored first, then delivered through
// Redis, an in-memory queue or, as a last resort, by polling the table.
type TaskWorker struct {
	store         TaskStore
	tenants       TenantSource
	notifier      domain.Notifier
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Task
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewTaskWorker builds a worker with sane defaults. sheets and redisClient
// may be nil.
func NewTaskWorker(
	store TaskStore,
	tenants TenantSource,
	notifier domain.Notifier,
	sheets domain.SheetsWriter,
	redisClient *redis.Client,
	cfg config.WorkerConfig,
	logger *zerolog.Logger,
) *TaskWorker {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &TaskWorker{
		store:         store,
		tenants:       tenants,
		notifier:      notifier,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   RetryPolicyFor(cfg),
		queue:         make(chan models.Task, models.WorkerQueueSize),
		redisQueueKey: "tasks:queue",
		deadLetterKey: "tasks:deadletter",
		pollInterval:  poll,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists task and schedules it via redis or in-memory queue.
func (w *TaskWorker) EnqueueTask(ctx context.Context, task *models.Task) error {
	switch task.TaskType {
	case models.TaskNotify, models.TaskSheetsAppend, models.TaskSheetsCancel:
	case "":
		return fmt.Errorf("%w: task type is required", domain.ErrValidation)
	default:
		return fmt.Errorf("%w: unknown task type %q", domain.ErrValidation, task.TaskType)
	}

	task.Status = models.TaskStatusPending
	if err := w.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("persist task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	// Fallback to in-memory queue if redis missing or failed.
	select {
	case w.queue <- *task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Subscribe mirrors booked and canceled appointments to Sheets through the
// outbox. Without a Sheets writer it does nothing.
func (w *TaskWorker) Subscribe(bus *events.EventBus) {
	if w.sheets == nil || bus == nil {
		return
	}

	bus.Subscribe(events.EventAppointmentBooked, func(e *events.Event) error {
		var p events.AppointmentEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		a := &models.Appointment{
			ID:               p.AppointmentID,
			TenantID:         p.TenantID,
			ProfessionalID:   p.ProfessionalID,
			ProfessionalName: p.ProfessionalName,
			ContactID:        p.ContactID,
			ContactName:      p.ContactName,
			ContactPhone:     p.ContactPhone,
			ScheduledAt:      p.ScheduledAt,
			Confirmed:        true,
			Notes:            p.Notes,
		}
		return w.enqueueSheets(models.TaskSheetsAppend, a)
	})

	bus.Subscribe(events.EventAppointmentCanceled, func(e *events.Event) error {
		var p events.AppointmentEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		return w.enqueueSheets(models.TaskSheetsCancel, &models.Appointment{ID: p.AppointmentID, TenantID: p.TenantID})
	})
}

func (w *TaskWorker) enqueueSheets(taskType string, a *models.Appointment) error {
	data, err := json.Marshal(sheetsPayload{Appointment: a})
	if err != nil {
		return fmt.Errorf("encode sheets payload: %w", err)
	}
	// event handlers have no request context; the task must outlive it anyway
	return w.EnqueueTask(context.Background(), &models.Task{
		TaskType:      taskType,
		TenantID:      a.TenantID,
		AppointmentID: a.ID,
		Payload:       string(data),
	})
}

// Start launches main loop; stops when ctx is done.
func (w *TaskWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("task worker started")
	defer w.logger.Info().Msg("task worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingTasks(ctx, time.Now(), w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *TaskWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case t := <-w.queue:
		w.processTask(ctx, &t)
	case <-timer.C:
	}
}

func (w *TaskWorker) tryLocalQueue() (models.Task, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.Task{}, false
	}
}

func (w *TaskWorker) tryRedis(ctx context.Context) (models.Task, bool) {
	if w.redis == nil {
		return models.Task{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.Task{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.Task{}, false
	}
	if len(res) != 2 {
		return models.Task{}, false
	}
	var task models.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.Task{}, false
	}
	return task, true
}

// processTask runs one attempt. A task that another path already claimed is
// skipped.
func (w *TaskWorker) processTask(ctx context.Context, task *models.Task) {
	claimed, err := w.store.ClaimTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim task")
		return
	}
	if !claimed {
		return
	}

	err = w.handle(ctx, task)
	switch {
	case err == nil:
		if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusDone, "", nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark done")
		}
		metrics.IncTask(task.TaskType, models.TaskStatusDone)
	case errors.Is(err, errPermanent):
		w.failTask(ctx, task, err)
	default:
		w.retryOrFail(ctx, task, err)
	}
}

func (w *TaskWorker) handle(ctx context.Context, task *models.Task) error {
	switch task.TaskType {
	case models.TaskNotify:
		var p models.NotifyPayload
		if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
			return fmt.Errorf("%w: decode payload: %v", errPermanent, err)
		}
		if p.Phone == "" || p.Text == "" {
			return fmt.Errorf("%w: phone or text missing", errPermanent)
		}
		tenant, err := w.tenants.GetTenant(ctx, task.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: %v", errPermanent, err)
			}
			return err
		}
		return w.notifier.Notify(ctx, tenant, p.Phone, p.Text)

	case models.TaskSheetsAppend:
		if w.sheets == nil {
			return fmt.Errorf("%w: sheets not configured", errPermanent)
		}
		var p sheetsPayload
		if err := json.Unmarshal([]byte(task.Payload), &p); err != nil || p.Appointment == nil {
			return fmt.Errorf("%w: appointment payload missing", errPermanent)
		}
		return w.sheets.AppendAppointment(ctx, p.Appointment)

	case models.TaskSheetsCancel:
		if w.sheets == nil {
			return fmt.Errorf("%w: sheets not configured", errPermanent)
		}
		if task.AppointmentID == 0 {
			return fmt.Errorf("%w: appointment id missing", errPermanent)
		}
		return w.sheets.MarkCanceled(ctx, task.AppointmentID)

	default:
		return fmt.Errorf("%w: unknown task type: %s", errPermanent, task.TaskType)
	}
}

func (w *TaskWorker) retryOrFail(ctx context.Context, task *models.Task, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusPending, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("task failed, will retry")
	metrics.IncTask(task.TaskType, "retry")
}

func (w *TaskWorker) failTask(ctx context.Context, task *models.Task, cause error) {
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("task failed permanently")
	metrics.IncTask(task.TaskType, models.TaskStatusFailed)
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *TaskWorker) pushRedis(ctx context.Context, key string, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
