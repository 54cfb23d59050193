package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/database"
	"rentacar/internal/domain"
	"rentacar/internal/events"
	"rentacar/internal/logging"
	"rentacar/internal/metrics"
	"rentacar/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskNotifyTelegram = "notify_telegram"
	TaskEmailCustomer  = "email_customer"
	TaskRegisterUpsert = "register_upsert"
	TaskRegisterResync = "register_resync"
)

var errNoTarget = errors.New("delivery target not configured")

// Notifier tells managers that a contract was signed.
type Notifier interface {
	NotifyContractSigned(ctx context.Context, p events.ContractEventPayload) error
}

// Targets are the external systems tasks are delivered to. Nil targets are skipped at enqueue time.
type Targets struct {
	Telegram Notifier
	Email    domain.EmailSender
	Register domain.RegisterWriter
}

// DeliveryWorker consumes sync_queue tasks produced by contract events and delivers them
// with retries. Tasks are persisted first, then pushed to Redis or the in-memory queue;
// the database poll picks up anything the fast paths lost.
type DeliveryWorker struct {
	db            *database.DB
	targets       Targets
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewDeliveryWorker(db *database.DB, targets Targets, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *DeliveryWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &DeliveryWorker{
		db:            db,
		targets:       targets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "contracts:delivery:queue",
		deadLetterKey: "contracts:delivery:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logging.Component(logger, "delivery_worker"),
	}
}

// SetPollInterval overrides how long the loop idles when no task is ready.
func (w *DeliveryWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Subscribe wires contract events to delivery tasks.
func (w *DeliveryWorker) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventContractSigned, w.onContractSigned)
	for _, t := range []string{events.EventContractCreated, events.EventContractRegenerated, events.EventContractRefreshed} {
		bus.Subscribe(t, w.onContractChanged)
	}
}

func (w *DeliveryWorker) onContractSigned(e *events.Event) error {
	var p events.ContractEventPayload
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	ctx := context.Background()

	var errs []error
	if w.targets.Telegram != nil {
		errs = append(errs, w.EnqueueTask(ctx, TaskNotifyTelegram, p.BookingID, p.ContractID, p))
	}
	if w.targets.Email != nil && p.CustomerEmail != "" {
		errs = append(errs, w.EnqueueTask(ctx, TaskEmailCustomer, p.BookingID, p.ContractID, p))
	}
	if w.targets.Register != nil {
		errs = append(errs, w.EnqueueTask(ctx, TaskRegisterUpsert, p.BookingID, p.ContractID, p))
	}
	return errors.Join(errs...)
}

func (w *DeliveryWorker) onContractChanged(e *events.Event) error {
	if w.targets.Register == nil {
		return nil
	}
	var p events.ContractEventPayload
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return w.EnqueueTask(context.Background(), TaskRegisterUpsert, p.BookingID, p.ContractID, p)
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
func (w *DeliveryWorker) EnqueueTask(ctx context.Context, taskType string, bookingID, contractID int64, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if contractID == 0 && taskType != TaskRegisterResync {
		return errors.New("contract id is required")
	}

	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}

	task := models.SyncTask{
		TaskType:   taskType,
		BookingID:  bookingID,
		ContractID: contractID,
		Payload:    string(raw),
		Status:     models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// EnqueueResync schedules a full rewrite of the contract register.
func (w *DeliveryWorker) EnqueueResync(ctx context.Context) error {
	if w.targets.Register == nil {
		return errNoTarget
	}
	return w.EnqueueTask(ctx, TaskRegisterResync, 0, 0, nil)
}

// Start runs the delivery loop until ctx is done.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("delivery worker started")
	defer w.logger.Info().Msg("delivery worker stopped")

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

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
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

func (w *DeliveryWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *DeliveryWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *DeliveryWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *DeliveryWorker) processTask(ctx context.Context, task *models.SyncTask) {
	if err := w.deliver(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncDelivery(task.TaskType, models.SyncStatusCompleted)
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *DeliveryWorker) deliver(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case TaskNotifyTelegram:
		if w.targets.Telegram == nil {
			return errNoTarget
		}
		p, err := decodePayload(task.Payload)
		if err != nil {
			return err
		}
		return w.targets.Telegram.NotifyContractSigned(ctx, p)

	case TaskEmailCustomer:
		if w.targets.Email == nil {
			return errNoTarget
		}
		p, err := decodePayload(task.Payload)
		if err != nil {
			return err
		}
		if p.CustomerEmail == "" {
			return errors.New("customer email missing")
		}
		c, err := w.db.GetContract(ctx, task.ContractID)
		if err != nil {
			return err
		}
		return w.targets.Email.SendSignedContract(ctx, p.CustomerEmail, p.CustomerName, emailSubject(p), c.ContractText)

	case TaskRegisterUpsert:
		if w.targets.Register == nil {
			return errNoTarget
		}
		entry, err := w.db.GetContractRegisterEntry(ctx, task.ContractID)
		if err != nil {
			return err
		}
		return w.targets.Register.UpsertContract(ctx, *entry)

	case TaskRegisterResync:
		if w.targets.Register == nil {
			return errNoTarget
		}
		entries, err := w.db.ListContractRegister(ctx, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		return w.targets.Register.ReplaceRegister(ctx, entries)

	default:
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}
}

func (w *DeliveryWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.Attempts(task.TaskType) || errors.Is(cause, errNoTarget) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncDelivery(task.TaskType, models.SyncStatusRetry)
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Str("task", task.TaskType).Int("attempt", attempt).Msg("delivery failed, will retry")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *DeliveryWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncDelivery(task.TaskType, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task", task.TaskType).Msg("delivery failed permanently")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func decodePayload(raw string) (events.ContractEventPayload, error) {
	var p events.ContractEventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

func emailSubject(p events.ContractEventPayload) string {
	if p.Language == models.LanguageEnglish {
		return "Your rental agreement " + p.ContractNumber
	}
	return "Su contrato de alquiler " + p.ContractNumber
}

func (w *DeliveryWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *DeliveryWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
