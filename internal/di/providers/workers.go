package providers

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/inbox"
	"github.com/buruapp/buru-server/internal/jobs"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/service"
)

// JobsHandle holds the background job client and worker. All fields are
// nil when no redis address is configured.
type JobsHandle struct {
	Client *jobs.Client
	States *jobs.StateStore
	runner *jobs.Runner
	redis  *redis.Client
}

// Enabled reports whether background jobs are running.
func (h *JobsHandle) Enabled() bool {
	return h.Client != nil
}

// Shutdown implements do.Shutdowner.
func (h *JobsHandle) Shutdown() error {
	if !h.Enabled() {
		return nil
	}
	h.runner.Shutdown()
	return errors.Join(h.Client.Close(), h.redis.Close())
}

// ProvideJobs starts the asynq worker and scheduler for tag count refreshes.
func ProvideJobs(i do.Injector) (*JobsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Queue.Enabled() {
		log.Info("Background jobs disabled, tag count refreshes run inline")
		return &JobsHandle{}, nil
	}

	tagService := do.MustInvoke[*service.TagService](i)

	jobsCfg := jobs.Config{
		RedisAddr:       cfg.Queue.RedisAddr,
		RedisPassword:   cfg.Queue.RedisPassword,
		RedisDB:         cfg.Queue.RedisDB,
		Queue:           cfg.Queue.QueueName,
		Concurrency:     cfg.Worker.Concurrency,
		RefreshInterval: cfg.Queue.RefreshInterval,
	}

	rdb := jobs.NewRedis(jobsCfg)
	states := jobs.NewStateStore(rdb, log.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := states.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	client := jobs.NewClient(asynq.NewClient(jobsCfg.RedisOpt()), states, jobsCfg.Queue, log.Logger)
	runner := jobs.NewRunner(jobsCfg, jobs.NewHandler(tagService, states, log.Logger), log.Logger)
	if err := runner.Start(); err != nil {
		_ = client.Close()
		_ = rdb.Close()
		return nil, err
	}

	return &JobsHandle{Client: client, States: states, runner: runner, redis: rdb}, nil
}

// InboxHandle wraps the inbox watcher with shutdown capability.
type InboxHandle struct {
	*inbox.Inbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdowner.
func (h *InboxHandle) Shutdown() error {
	if h.Inbox == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideInbox starts the watch folder when INBOX_PATH is set.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Inbox.Path == "" {
		return &InboxHandle{}, nil
	}

	archive := do.MustInvoke[*service.ArchiveService](i)

	in, err := inbox.New(inbox.Options{
		Root:        cfg.Inbox.Path,
		SettleDelay: cfg.Inbox.SettleDelay,
	}, archive, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := in.Run(ctx); err != nil {
			log.Error("Inbox watcher error", "error", err)
		}
	}()

	log.Info("Inbox watcher started", "path", in.Root())

	return &InboxHandle{Inbox: in, cancel: cancel, done: done}, nil
}
