package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/meridian-club/meridian/internal/autogrant"
	jobmetrics "github.com/meridian-club/meridian/internal/jobs"
	"github.com/meridian-club/meridian/internal/shared"
)

const (
	// TaskAutoGrantOrder follows up an approved purchase with ledger writes.
	TaskAutoGrantOrder = "autogrant:order"
	// TaskAutoGrantInitiation follows up a successful initiation.
	TaskAutoGrantInitiation = "autogrant:initiation"
)

// AutoGrantOrderPayload identifies the approved order to process.
type AutoGrantOrderPayload struct {
	OrderID int64 `json:"order_id"`
}

// AutoGrantInitiationPayload identifies the finished initiation to process.
type AutoGrantInitiationPayload struct {
	InitiationID int64 `json:"initiation_id"`
}

// NewAutoGrantOrderTask constructs an Asynq task for an approved order.
func NewAutoGrantOrderTask(orderID int64) (*asynq.Task, error) {
	body, err := json.Marshal(AutoGrantOrderPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutoGrantOrder, body, asynq.Queue(QueueDefault)), nil
}

// NewAutoGrantInitiationTask constructs an Asynq task for a finished initiation.
func NewAutoGrantInitiationTask(initiationID int64) (*asynq.Task, error) {
	body, err := json.Marshal(AutoGrantInitiationPayload{InitiationID: initiationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutoGrantInitiation, body, asynq.Queue(QueueDefault)), nil
}

// Notifier enqueues follow-up notification emails.
type Notifier interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// AddressBook resolves a user id to a deliverable address.
type AddressBook interface {
	Email(ctx context.Context, userID int64) (string, error)
}

// AutoGrantHandler executes the auto-grant workflow from queued tasks. The
// trigger re-reads current state and the ledger absorbs duplicates, so the
// handlers are safe under at-least-once delivery.
type AutoGrantHandler struct {
	trigger     *autogrant.Trigger
	idempotency *shared.IdempotencyStore
	notifier    Notifier
	addresses   AddressBook
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

// NewAutoGrantHandler constructs the handler.
func NewAutoGrantHandler(trigger *autogrant.Trigger, idem *shared.IdempotencyStore, notifier Notifier, addresses AddressBook, metrics *jobmetrics.Metrics, logger *slog.Logger) *AutoGrantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoGrantHandler{trigger: trigger, idempotency: idem, notifier: notifier, addresses: addresses, metrics: metrics, logger: logger}
}

// HandleOrder processes TaskAutoGrantOrder tasks.
func (h *AutoGrantHandler) HandleOrder(ctx context.Context, t *asynq.Task) error {
	var payload AutoGrantOrderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track("autogrant_order")
	result, err := h.trigger.OrderApproved(ctx, payload.OrderID)
	return tracker.End(h.finish(ctx, "order:"+formatID(payload.OrderID), result, err))
}

// HandleInitiation processes TaskAutoGrantInitiation tasks.
func (h *AutoGrantHandler) HandleInitiation(ctx context.Context, t *asynq.Task) error {
	var payload AutoGrantInitiationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track("autogrant_initiation")
	result, err := h.trigger.InitiationFinished(ctx, payload.InitiationID)
	return tracker.End(h.finish(ctx, "initiation:"+formatID(payload.InitiationID), result, err))
}

// finish classifies the trigger outcome for the queue and fires the one-shot
// notification. A partial grant failure is a configuration problem that a
// retry cannot repair, so the task is archived rather than requeued.
func (h *AutoGrantHandler) finish(ctx context.Context, key string, result autogrant.Result, err error) error {
	var partial *autogrant.PartialGrantError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		h.metrics.AddPartialFailures("autogrant", len(partial.Failures))
		h.logger.Error("auto-grant finished with failures", slog.String("source", key), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case errors.Is(err, shared.ErrNotFound):
		h.logger.Error("auto-grant source missing", slog.String("source", key), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		// Transient failure, let the queue retry.
		return err
	}

	if len(result.Granted) == 0 || h.notifier == nil || h.addresses == nil {
		return nil
	}
	// One email per triggering event, guarded against redelivery.
	if h.idempotency != nil {
		switch err := h.idempotency.CheckAndInsert(ctx, "autogrant:"+key, "autogrant"); {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			return nil
		case err != nil:
			h.logger.Warn("idempotency check", slog.String("source", key), slog.Any("error", err))
			return nil
		}
	}
	userID := result.Granted[0].UserID
	to, err := h.addresses.Email(ctx, userID)
	if err != nil {
		h.logger.Warn("resolve notification address", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil
	}
	payload := SendEmailPayload{
		To:      to,
		Subject: "New membership roles unlocked",
		Body:    fmt.Sprintf("You have been granted %d new role(s).", len(result.Granted)),
	}
	if _, err := h.notifier.EnqueueSendEmail(ctx, payload); err != nil {
		h.logger.Warn("enqueue grant notification", slog.String("source", key), slog.Any("error", err))
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
