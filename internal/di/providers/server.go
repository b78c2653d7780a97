package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/api"
	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.handler.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	jobsHandle := do.MustInvoke[*JobsHandle](i)

	services := &api.Services{
		Archive:  do.MustInvoke[*service.ArchiveService](i),
		Images:   do.MustInvoke[*service.ImageService](i),
		Tags:     do.MustInvoke[*service.TagService](i),
		Database: storeHandle.Store,
	}
	// Left as nil interfaces when jobs are off so refreshes run inline.
	if jobsHandle.Enabled() {
		services.Refresh = jobsHandle.Client
		services.Queue = jobsHandle.States
	}

	handler := api.NewServer(services, api.Config{
		Version:          Version,
		BodyLimit:        cfg.Server.BodyLimit,
		CORSOrigins:      cfg.Server.CORSOrigins,
		UploadsPerMinute: cfg.RateLimit.UploadsPerMinute,
		UploadBurst:      cfg.RateLimit.Burst,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr, "cdn", cfg.Server.CDNBaseURL)

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}
