package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/normalize"
	"github.com/buruapp/buru-server/internal/query"
)

// DefaultSuggestLimit is used when a suggestion request names no limit.
const DefaultSuggestLimit = 10

// TagStore is the persistence the tag service needs.
type TagStore interface {
	ListTags(ctx context.Context, f query.TagFilter, page query.Pagination) ([]domain.TagCount, error)
	SuggestTags(ctx context.Context, prefix string, limit int) ([]string, error)
	RefreshTagCounts(ctx context.Context) error
	CountImagesByTag(ctx context.Context, name string) (int64, error)
}

// TagListRequest filters a tag listing.
type TagListRequest struct {
	// NameComma is a comma or space separated list of exact names.
	NameComma string
	Prefix    string
	Contains  string
	Page      query.Pagination
}

// TagService lists, suggests and recounts tags.
type TagService struct {
	store  TagStore
	logger *slog.Logger
}

// NewTagService creates a new tag service.
func NewTagService(tagStore TagStore, logger *slog.Logger) *TagService {
	return &TagService{store: tagStore, logger: logger}
}

// List returns one page of tags with their cached counts.
func (s *TagService) List(ctx context.Context, req TagListRequest) ([]domain.TagCount, error) {
	var f query.TagFilter

	if req.NameComma != "" {
		names, err := normalize.Tags(normalize.SplitTags(req.NameComma))
		if err != nil {
			return nil, domainerrors.InvalidArgument(err.Error())
		}
		f.Names = names
	}
	var err error
	if f.Prefix, err = normalizeFragment(req.Prefix); err != nil {
		return nil, err
	}
	if f.Contains, err = normalizeFragment(req.Contains); err != nil {
		return nil, err
	}

	return s.store.ListTags(ctx, f, req.Page)
}

// Suggest returns up to limit tag names starting with prefix, most used first.
func (s *TagService) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit == 0 {
		limit = DefaultSuggestLimit
	}
	if limit < 1 || limit > query.MaxLimit {
		return nil, domainerrors.InvalidArgumentf("limit must be between 1 and %d", query.MaxLimit).
			WithDetails(map[string]any{"field": "limit", "value": limit})
	}
	p, err := normalizeFragment(prefix)
	if err != nil {
		return nil, err
	}
	return s.store.SuggestTags(ctx, p, limit)
}

// Refresh recomputes every cached tag count.
func (s *TagService) Refresh(ctx context.Context) error {
	start := time.Now()
	if err := s.store.RefreshTagCounts(ctx); err != nil {
		s.logger.Error("tag count refresh failed", "error", err)
		return err
	}
	s.logger.Info("tag counts refreshed", "duration", time.Since(start))
	return nil
}

// CountByTag returns the live number of images carrying name.
func (s *TagService) CountByTag(ctx context.Context, name string) (int64, error) {
	n, err := normalize.TagName(name)
	if err != nil {
		return 0, domainerrors.InvalidArgument(err.Error())
	}
	return s.store.CountImagesByTag(ctx, n)
}

// normalizeFragment canonicalizes a partial tag name used for matching.
func normalizeFragment(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	n, err := normalize.TagName(s)
	if err != nil {
		return "", domainerrors.InvalidArgumentf("invalid tag fragment: %v", err)
	}
	return n, nil
}
