// Package di provides dependency injection configuration for the buru server.
package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/di/providers"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/media"
	"github.com/buruapp/buru-server/internal/service"
	"github.com/buruapp/buru-server/internal/worker"
)

// NewContainer creates the DI container with the providers shared by every
// entry point. The HTTP server and background workers are registered by
// NewServerContainer.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideContentStore)
	do.Provide(injector, providers.ProvideExtractor)
	do.Provide(injector, providers.ProvideWorkerPool)

	// Business services
	do.Provide(injector, providers.ProvideArchiveService)
	do.Provide(injector, providers.ProvideImageService)
	do.Provide(injector, providers.ProvideTagService)

	return injector
}

// NewServerContainer adds the long-running components on top of NewContainer.
func NewServerContainer() *do.RootScope {
	injector := NewContainer()

	// Workers
	do.Provide(injector, providers.ProvideJobs)
	do.Provide(injector, providers.ProvideInbox)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes the core services. Errors from providers panic
// inside MustInvoke, so they are recovered and returned.
func Bootstrap(injector *do.RootScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = toError(r)
		}
	}()

	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*content.Store](injector)
	_ = do.MustInvoke[*media.Extractor](injector)
	_ = do.MustInvoke[*worker.Pool](injector)

	_ = do.MustInvoke[*service.ArchiveService](injector)
	_ = do.MustInvoke[*service.ImageService](injector)
	_ = do.MustInvoke[*service.TagService](injector)

	return nil
}

// BootstrapServer initializes everything, then starts the workers and the HTTP server.
func BootstrapServer(injector *do.RootScope) (err error) {
	if err := Bootstrap(injector); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = toError(r)
		}
	}()

	_ = do.MustInvoke[*providers.JobsHandle](injector)
	_ = do.MustInvoke[*providers.InboxHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}

func toError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
