package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/http/response"
	"github.com/buruapp/buru-server/internal/normalize"
	"github.com/buruapp/buru-server/internal/service"
)

// uploadTimeout bounds a single upload, including hashing and extraction.
const uploadTimeout = 5 * time.Minute

func (s *Server) registerUploadRoutes() {
	// Multipart uploads use chi directly; huma has no streaming form support.
	s.router.With(RateLimitMiddleware(s.uploadLimiter, s.logger)).
		Post("/images", withExtendedTimeout(s.handleUploadImage, uploadTimeout))
}

// UploadResponse is the body returned by the upload endpoint.
type UploadResponse struct {
	Created bool              `json:"created"`
	Image   service.MediaView `json:"image"`
}

// withExtendedTimeout extends the connection deadlines for slow uploads.
func withExtendedTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// Not every ResponseWriter supports deadlines; the server defaults apply then.
		_ = rc.SetReadDeadline(time.Now().Add(timeout))
		_ = rc.SetWriteDeadline(time.Now().Add(timeout))
		next(w, r)
	}
}

// handleUploadImage archives a multipart "file" part with optional "tags"
// (space or comma separated) and "source" fields.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.BodyLimit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, http.StatusRequestEntityTooLarge, domainerrors.CodeInvalidArgument,
				fmt.Sprintf("upload exceeds %d bytes", s.cfg.BodyLimit), s.logger)
			return
		}
		response.HandleError(w, domainerrors.InvalidArgument("expected a multipart form with a file field"), s.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.HandleError(w, domainerrors.InvalidArgument("missing file field"), s.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.HandleError(w, domainerrors.IO(err, "failed to read upload"), s.logger)
		return
	}

	result, err := s.services.Archive.Archive(ctx, service.ArchiveRequest{
		Data:   data,
		Tags:   normalize.SplitTags(r.FormValue("tags")),
		Source: r.FormValue("source"),
	})
	if err != nil {
		s.logger.Info("upload rejected",
			"filename", header.Filename,
			"size", len(data),
			"code", domainerrors.CodeOf(err),
		)
		response.HandleError(w, err, s.logger)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(w, status, UploadResponse{
		Created: result.Created,
		Image:   s.services.Images.View(result.Media),
	}, s.logger)
}
