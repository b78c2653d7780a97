package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/normalize"
	"github.com/buruapp/buru-server/internal/query"
)

// PreviewVariant is the square thumbnail advertised with every image.
var PreviewVariant = content.Sized(180, 180)

// fetchConcurrency caps parallel per-image reads while building a page.
const fetchConcurrency = 8

// ImageStore is the persistence the image service needs.
type ImageStore interface {
	GetImage(ctx context.Context, hash content.Hash) (domain.Media, error)
	ListImageHashes(ctx context.Context, q query.Query, page query.Pagination) ([]content.Hash, error)
	CountImages(ctx context.Context, q query.Query) (int64, error)
	ReplaceImageTags(ctx context.Context, hash content.Hash, tags []string) error
	DeleteImage(ctx context.Context, hash content.Hash) error
}

// VariantURLs are the public locations of an image's variants.
type VariantURLs struct {
	Preview  string `json:"preview"`
	Sample   string `json:"sample"`
	Original string `json:"original"`
}

// MediaView is an archived item with its public URLs.
type MediaView struct {
	domain.Media
	URLs VariantURLs `json:"urls"`
}

// ImagePage is one page of query results.
type ImagePage struct {
	Items []MediaView
	Page  int
	Limit int
}

// ImageService reads and edits archived images.
type ImageService struct {
	content    *content.Store
	store      ImageStore
	cdnBaseURL string
	logger     *slog.Logger
}

// NewImageService creates a new image service. cdnBaseURL prefixes every
// variant URL.
func NewImageService(contentStore *content.Store, imageStore ImageStore, cdnBaseURL string, logger *slog.Logger) *ImageService {
	return &ImageService{
		content:    contentStore,
		store:      imageStore,
		cdnBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
		logger:     logger,
	}
}

// URLs builds the variant URLs of hash.
func (s *ImageService) URLs(hash content.Hash) VariantURLs {
	return VariantURLs{
		Preview:  s.cdnBaseURL + "/" + content.Location(hash, PreviewVariant),
		Sample:   s.cdnBaseURL + "/" + content.Location(hash, content.Sample),
		Original: s.cdnBaseURL + "/" + content.Location(hash, content.Original),
	}
}

// View attaches the variant URLs to m.
func (s *ImageService) View(m domain.Media) MediaView {
	return MediaView{Media: m, URLs: s.URLs(m.Hash)}
}

// Get returns the media view of the image identified by hash.
func (s *ImageService) Get(ctx context.Context, hash string) (*MediaView, error) {
	h, err := content.ParseHash(hash)
	if err != nil {
		return nil, err
	}
	m, err := s.store.GetImage(ctx, h)
	if err != nil {
		return nil, err
	}
	v := s.View(m)
	return &v, nil
}

// List evaluates a tag query and returns one page of media views in the
// query's order. Pages are fetched in parallel.
func (s *ImageService) List(ctx context.Context, rawQuery string, page query.Pagination) (*ImagePage, error) {
	q, err := parseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	hashes, err := s.store.ListImageHashes(ctx, q, page)
	if err != nil {
		return nil, err
	}

	items := make([]*MediaView, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, h := range hashes {
		g.Go(func() error {
			m, err := s.store.GetImage(gctx, h)
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				// Deleted after the listing; leave a gap.
				return nil
			}
			if err != nil {
				return err
			}
			v := s.View(m)
			items[i] = &v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]MediaView, 0, len(items))
	for _, v := range items {
		if v != nil {
			out = append(out, *v)
		}
	}
	return &ImagePage{Items: out, Page: page.Page, Limit: page.Limit}, nil
}

// Count returns the number of images matching a tag query.
func (s *ImageService) Count(ctx context.Context, rawQuery string) (int64, error) {
	q, err := parseQuery(rawQuery)
	if err != nil {
		return 0, err
	}
	return s.store.CountImages(ctx, q)
}

// ReplaceTags makes tags the complete tag set of the image.
func (s *ImageService) ReplaceTags(ctx context.Context, hash string, tags []string) (*MediaView, error) {
	// 1. Validate input
	h, err := content.ParseHash(hash)
	if err != nil {
		return nil, err
	}
	names, err := normalize.Tags(tags)
	if err != nil {
		return nil, domainerrors.InvalidArgument(err.Error())
	}

	// 2. Swap associations atomically
	if err := s.store.ReplaceImageTags(ctx, h, names); err != nil {
		return nil, err
	}

	s.logger.Info("image tags replaced", "hash", hash, "tags", len(names))

	// 3. Return fresh view
	return s.Get(ctx, hash)
}

// Delete removes the image, its metadata and tag links, then its stored
// bytes. Tags and cached counts are untouched.
func (s *ImageService) Delete(ctx context.Context, hash string) error {
	h, err := content.ParseHash(hash)
	if err != nil {
		return err
	}
	if err := s.store.DeleteImage(ctx, h); err != nil {
		return err
	}

	// Rows are gone; leftover bytes are unreachable and only cost space.
	if err := s.content.Delete(h); err != nil {
		s.logger.Warn("failed to remove stored content", "hash", hash, "error", err)
	}

	s.logger.Info("image deleted", "hash", hash)
	return nil
}

// OpenFile opens a stored variant for streaming.
func (s *ImageService) OpenFile(variant, hash string) (*os.File, error) {
	v, err := content.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	h, err := content.ParseHash(hash)
	if err != nil {
		return nil, err
	}
	return s.content.Open(h, v)
}

// parseQuery parses raw into a query, reporting parse failures as
// SYNTAX_ERROR with the offending position.
func parseQuery(raw string) (query.Query, error) {
	q, err := query.Parse(raw)
	if err == nil {
		return q, nil
	}
	var se *query.SyntaxError
	if errors.As(err, &se) {
		return query.Query{}, domainerrors.Syntax(se.Error()).WithDetails(map[string]any{
			"position": se.Pos,
			"near":     se.Near,
		})
	}
	return query.Query{}, domainerrors.Wrap(err, domainerrors.CodeSyntax, "invalid query")
}
