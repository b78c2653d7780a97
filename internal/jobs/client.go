package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// Client enqueues background tasks and reports their status.
type Client struct {
	enqueuer Enqueuer
	states   *StateStore
	queue    string
	logger   *slog.Logger
}

// NewClient creates a task client.
func NewClient(enqueuer Enqueuer, states *StateStore, queue string, logger *slog.Logger) *Client {
	return &Client{enqueuer: enqueuer, states: states, queue: queue, logger: logger}
}

// EnqueueRefresh queues a tag count refresh and returns its task id.
func (c *Client) EnqueueRefresh(ctx context.Context) (string, error) {
	taskID := uuid.NewString()
	b, err := json.Marshal(refreshPayload{TaskID: taskID})
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "encode refresh payload")
	}

	// The worker may pick the task up before Enqueue returns, so PENDING
	// has to be recorded first or it would overwrite STARTED.
	if err := c.states.Set(ctx, taskID, StatusPending, "tag count refresh queued"); err != nil {
		return "", err
	}

	task := asynq.NewTask(TypeRefreshTagCounts, b)
	if _, err := c.enqueuer.Enqueue(task,
		asynq.Queue(c.queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
		asynq.Timeout(refreshTimeout),
	); err != nil {
		if serr := c.states.Set(ctx, taskID, StatusFailure, err.Error()); serr != nil {
			c.logger.Warn("failed to record enqueue failure", "task_id", taskID, "error", serr)
		}
		return "", domainerrors.IO(err, "enqueue tag count refresh")
	}

	c.logger.Info("tag count refresh enqueued", "task_id", taskID, "queue", c.queue)
	return taskID, nil
}

// Status returns the recorded state of taskID.
func (c *Client) Status(ctx context.Context, taskID string) (*TaskState, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, domainerrors.InvalidArgumentf("task id %q is not a UUID", taskID)
	}
	return c.states.Get(ctx, taskID)
}

// Close releases the enqueuer connection.
func (c *Client) Close() error {
	return c.enqueuer.Close()
}
