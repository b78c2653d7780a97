package api

import (
	"context"

	"github.com/buruapp/buru-server/internal/jobs"
	"github.com/buruapp/buru-server/internal/service"
)

// Pinger reports whether a backing system is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RefreshQueue runs tag count refreshes in the background.
type RefreshQueue interface {
	EnqueueRefresh(ctx context.Context) (string, error)
	Status(ctx context.Context, taskID string) (*jobs.TaskState, error)
}

// Services groups the business services used by the API server.
type Services struct {
	Archive *service.ArchiveService
	Images  *service.ImageService
	Tags    *service.TagService
	// Refresh is nil when no queue is configured; refreshes then run inline.
	Refresh RefreshQueue

	Database Pinger
	Queue    Pinger // optional
}
