package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// Handler processes background tasks.
type Handler struct {
	refresher Refresher
	states    *StateStore
	logger    *slog.Logger
}

// NewHandler creates a task handler.
func NewHandler(refresher Refresher, states *StateStore, logger *slog.Logger) *Handler {
	return &Handler{refresher: refresher, states: states, logger: logger}
}

// ProcessRefresh runs a tag count refresh task, recording its state.
func (h *Handler) ProcessRefresh(ctx context.Context, t *asynq.Task) error {
	var p refreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode refresh payload: %w: %w", err, asynq.SkipRetry)
		}
	}
	taskID, ok := asynq.GetTaskID(ctx)
	if !ok {
		taskID = p.TaskID
	}

	// State bookkeeping failures must not fail the refresh itself.
	_ = h.states.Set(ctx, taskID, StatusStarted, "")

	start := time.Now()
	if err := h.refresher.Refresh(ctx); err != nil {
		_ = h.states.Set(context.WithoutCancel(ctx), taskID, StatusFailure, err.Error())
		return err
	}

	_ = h.states.Set(ctx, taskID, StatusSuccess, fmt.Sprintf("refreshed in %s", time.Since(start).Round(time.Millisecond)))
	return nil
}

// Mux routes task types to their handlers.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRefreshTagCounts, h.ProcessRefresh)
	return mux
}

// Runner owns the asynq worker server and the periodic scheduler.
type Runner struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	handler   *Handler
	cfg       Config
	logger    *slog.Logger
}

// NewRunner creates a runner. The scheduler is only created when
// cfg.RefreshInterval is positive.
func NewRunner(cfg Config, handler *Handler, logger *slog.Logger) *Runner {
	alog := asynqLogger{logger: logger.With("component", "asynq")}

	server := asynq.NewServer(cfg.RedisOpt(), asynq.Config{
		Concurrency: max(cfg.Concurrency, 1),
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      alog,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", "type", task.Type(), "error", err)
		}),
	})

	var scheduler *asynq.Scheduler
	if cfg.RefreshInterval > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpt(), &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   alog,
		})
	}

	return &Runner{server: server, scheduler: scheduler, handler: handler, cfg: cfg, logger: logger}
}

// Start begins processing tasks and, when configured, schedules the
// periodic refresh.
func (r *Runner) Start() error {
	if err := r.server.Start(r.handler.Mux()); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}

	if r.scheduler != nil {
		spec := "@every " + r.cfg.RefreshInterval.String()
		if _, err := r.scheduler.Register(spec,
			asynq.NewTask(TypeRefreshTagCounts, nil),
			asynq.Queue(r.cfg.Queue),
			asynq.MaxRetry(0),
			asynq.Timeout(refreshTimeout),
		); err != nil {
			r.server.Shutdown()
			return fmt.Errorf("register refresh schedule: %w", err)
		}
		if err := r.scheduler.Start(); err != nil {
			r.server.Shutdown()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	r.logger.Info("task worker started",
		"queue", r.cfg.Queue,
		"concurrency", r.cfg.Concurrency,
		"refresh_interval", r.cfg.RefreshInterval,
	)
	return nil
}

// Shutdown stops the scheduler and drains the worker.
func (r *Runner) Shutdown() {
	if r.scheduler != nil {
		r.scheduler.Shutdown()
	}
	r.server.Shutdown()
	r.logger.Info("task worker stopped")
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
