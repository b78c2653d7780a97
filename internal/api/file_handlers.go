package api

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/http/response"
)

func (s *Server) registerFileRoutes() {
	// Direct chi route for content streaming.
	s.router.Get("/files/{variant}/*", s.handleServeFile)
}

// handleServeFile streams stored bytes. The trailing path is either the
// bare hash or the sharded "ab/cd/<hash>" location used in variant URLs.
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	variant := chi.URLParam(r, "variant")
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	hash := path.Base(rest)

	if rest != hash && (len(hash) < 4 || rest != hash[0:2]+"/"+hash[2:4]+"/"+hash) {
		response.HandleError(w, domainerrors.NotFoundf("no file at %s", r.URL.Path), s.logger)
		return
	}

	f, err := s.services.Images.OpenFile(variant, hash)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.HandleError(w, domainerrors.IO(err, "failed to stat stored file"), s.logger)
		return
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		response.HandleError(w, domainerrors.IO(err, "failed to read stored file"), s.logger)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		response.HandleError(w, domainerrors.IO(err, "failed to read stored file"), s.logger)
		return
	}

	w.Header().Set("Content-Type", mtype.String())
	w.Header().Set("Cache-Control", CacheImmutable)
	w.Header().Set("ETag", `"`+variant+"-"+hash+`"`)
	http.ServeContent(w, r, hash, info.ModTime(), f)
}
