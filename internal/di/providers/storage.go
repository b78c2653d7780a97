package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/media"
	"github.com/buruapp/buru-server/internal/worker"
)

// ProvideContentStore provides the content-addressed byte store.
func ProvideContentStore(i do.Injector) (*content.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	store, err := content.NewStore(cfg.Storage.BasePath)
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}
	if err := store.Check(); err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}

	log.Info("Content store initialized", "root", store.Root())

	return store, nil
}

// ProvideExtractor provides the metadata extractor, with ffprobe when available.
func ProvideExtractor(i do.Injector) (*media.Extractor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ffprobe := media.NewFFprobe(cfg.Media.FFprobePath)
	if ffprobe == nil {
		log.Warn("ffprobe not found, only mp4/mov video can be probed")
	}

	return media.NewExtractor(ffprobe, log.Logger), nil
}

// ProvideWorkerPool provides the CPU pool for hashing and extraction.
func ProvideWorkerPool(i do.Injector) (*worker.Pool, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return worker.NewPool(cfg.Worker.Concurrency), nil
}
