package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/buruapp/buru-server/internal/domain"
	"github.com/buruapp/buru-server/internal/query"
	"github.com/buruapp/buru-server/internal/service"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "List tags",
		Description: "Returns tags with their cached image counts, most used first",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "suggestTags",
		Method:      http.MethodGet,
		Path:        "/tags/suggest",
		Summary:     "Suggest tags",
		Description: "Returns tag names starting with a prefix, most used first",
		Tags:        []string{"Tags"},
	}, s.handleSuggestTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "countTagImages",
		Method:      http.MethodGet,
		Path:        "/tags/{name}/count",
		Summary:     "Count images with tag",
		Description: "Returns the live number of images carrying a tag",
		Tags:        []string{"Tags"},
	}, s.handleCountTagImages)
}

// === DTOs ===

// ListTagsInput contains parameters for listing tags.
type ListTagsInput struct {
	NameComma string `query:"search[name_comma]" doc:"Comma separated exact tag names"`
	Prefix    string `query:"prefix" doc:"Only tags starting with this prefix"`
	Contains  string `query:"contains" doc:"Only tags containing this fragment"`
	Page      int    `query:"page" default:"1" doc:"1-based page number"`
	Limit     int    `query:"limit" default:"20" doc:"Page size (max 1000)"`
}

// ListTagsResponse contains a list of tags.
type ListTagsResponse struct {
	Tags  []domain.TagCount `json:"tags" doc:"Tags with cached counts"`
	Page  int               `json:"page" doc:"Page number"`
	Limit int               `json:"limit" doc:"Page size"`
}

// ListTagsOutput wraps the list tags response for Huma.
type ListTagsOutput struct {
	Body ListTagsResponse
}

// SuggestTagsInput contains parameters for tag suggestion.
type SuggestTagsInput struct {
	Prefix string `query:"prefix" doc:"Tag name prefix, case-insensitive"`
	Limit  int    `query:"limit" default:"10" doc:"Maximum suggestions"`
}

// SuggestTagsResponse contains suggested tag names.
type SuggestTagsResponse struct {
	Tags []string `json:"tags" doc:"Suggested tag names"`
}

// SuggestTagsOutput wraps the suggestion response for Huma.
type SuggestTagsOutput struct {
	Body SuggestTagsResponse
}

// TagNameInput identifies a tag by name.
type TagNameInput struct {
	Name string `path:"name" doc:"Tag name"`
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, input *ListTagsInput) (*ListTagsOutput, error) {
	page, err := query.NewPagination(input.Page, input.Limit)
	if err != nil {
		return nil, err
	}

	tags, err := s.services.Tags.List(ctx, service.TagListRequest{
		NameComma: input.NameComma,
		Prefix:    input.Prefix,
		Contains:  input.Contains,
		Page:      page,
	})
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []domain.TagCount{}
	}

	return &ListTagsOutput{Body: ListTagsResponse{Tags: tags, Page: page.Page, Limit: page.Limit}}, nil
}

func (s *Server) handleSuggestTags(ctx context.Context, input *SuggestTagsInput) (*SuggestTagsOutput, error) {
	names, err := s.services.Tags.Suggest(ctx, input.Prefix, input.Limit)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return &SuggestTagsOutput{Body: SuggestTagsResponse{Tags: names}}, nil
}

func (s *Server) handleCountTagImages(ctx context.Context, input *TagNameInput) (*CountOutput, error) {
	n, err := s.services.Tags.CountByTag(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	return &CountOutput{Body: CountResponse{Count: n}}, nil
}
