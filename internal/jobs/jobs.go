// Package jobs runs archive maintenance as background asynq tasks and keeps
// their status in redis for polling clients.
package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Task types.
const (
	TypeRefreshTagCounts = "buru:refresh_tag_counts"
)

const (
	taskMetaPrefix = "buru:task-meta-"
	taskStateTTL   = 7 * 24 * time.Hour
	refreshTimeout = 30 * time.Minute
)

// Config selects the redis instance and queue used for background work.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	Concurrency   int
	// RefreshInterval schedules a periodic tag count refresh. Zero disables it.
	RefreshInterval time.Duration
}

// RedisOpt returns the asynq connection options for c.
func (c Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewRedis opens a go-redis client for task state records.
func NewRedis(c Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

// RedisClient abstracts the redis operations used for task state.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Enqueuer abstracts task enqueue operations.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Refresher recomputes cached tag counts.
type Refresher interface {
	Refresh(ctx context.Context) error
}

var (
	_ RedisClient = (*redis.Client)(nil)
	_ Enqueuer    = (*asynq.Client)(nil)
)

type refreshPayload struct {
	TaskID string `json:"task_id,omitempty"`
}
