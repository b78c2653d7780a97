package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// Status is the lifecycle state of a queued task.
type Status string

// Task statuses.
const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// TaskState is the stored record of a task.
type TaskState struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// StateStore keeps task states in redis for a week.
type StateStore struct {
	rdb    RedisClient
	logger *slog.Logger
	now    func() time.Time
}

// NewStateStore creates a state store over rdb.
func NewStateStore(rdb RedisClient, logger *slog.Logger) *StateStore {
	return &StateStore{rdb: rdb, logger: logger, now: time.Now}
}

// Set records the state of taskID.
func (s *StateStore) Set(ctx context.Context, taskID string, status Status, message string) error {
	rec := TaskState{Status: status, Message: message, UpdatedAt: s.now().UTC().Format(time.RFC3339)}
	b, err := json.Marshal(rec)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "encode task state")
	}
	if err := s.rdb.Set(ctx, taskMetaPrefix+taskID, b, taskStateTTL).Err(); err != nil {
		s.logger.Error("failed to persist task state", "task_id", taskID, "status", status, "error", err)
		return domainerrors.IO(err, "persist task state")
	}

	attrs := []any{"task_id", taskID, "status", status}
	if message != "" {
		attrs = append(attrs, "message", message)
	}
	if status == StatusFailure {
		s.logger.Error("task state updated", attrs...)
	} else {
		s.logger.Info("task state updated", attrs...)
	}
	return nil
}

// Get returns the state of taskID, or NOT_FOUND once it expired or never existed.
func (s *StateStore) Get(ctx context.Context, taskID string) (*TaskState, error) {
	raw, err := s.rdb.Get(ctx, taskMetaPrefix+taskID).Result()
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, domainerrors.NotFoundf("task %s not found", taskID)
	}
	if err != nil {
		return nil, domainerrors.IO(err, "read task state")
	}

	var rec TaskState
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInternal, "task %s has a malformed state", taskID)
	}
	return &rec, nil
}

// Ping checks the redis connection.
func (s *StateStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return domainerrors.IO(err, "ping redis")
	}
	return nil
}
