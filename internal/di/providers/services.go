package providers

import (
	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/media"
	"github.com/buruapp/buru-server/internal/service"
	"github.com/buruapp/buru-server/internal/worker"
)

// ProvideArchiveService provides the archive orchestrator.
func ProvideArchiveService(i do.Injector) (*service.ArchiveService, error) {
	contentStore := do.MustInvoke[*content.Store](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	extractor := do.MustInvoke[*media.Extractor](i)
	pool := do.MustInvoke[*worker.Pool](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewArchiveService(contentStore, storeHandle.Store, extractor, pool, log.Logger), nil
}

// ProvideImageService provides the image read/edit service.
func ProvideImageService(i do.Injector) (*service.ImageService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	contentStore := do.MustInvoke[*content.Store](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewImageService(contentStore, storeHandle.Store, cfg.Server.CDNBaseURL, log.Logger), nil
}

// ProvideTagService provides the tag service.
func ProvideTagService(i do.Injector) (*service.TagService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTagService(storeHandle.Store, log.Logger), nil
}
