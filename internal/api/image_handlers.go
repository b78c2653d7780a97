package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/buruapp/buru-server/internal/query"
	"github.com/buruapp/buru-server/internal/service"
)

func (s *Server) registerImageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listImages",
		Method:      http.MethodGet,
		Path:        "/images",
		Summary:     "List images",
		Description: "Evaluates a tag query and returns one page of matching images, newest first unless an order: directive is given",
		Tags:        []string{"Images"},
	}, s.handleListImages)

	huma.Register(s.api, huma.Operation{
		OperationID: "countImages",
		Method:      http.MethodGet,
		Path:        "/images/count",
		Summary:     "Count images",
		Description: "Returns the number of images matching a tag query",
		Tags:        []string{"Images"},
	}, s.handleCountImages)

	huma.Register(s.api, huma.Operation{
		OperationID: "getImage",
		Method:      http.MethodGet,
		Path:        "/images/{hash}",
		Summary:     "Get image",
		Description: "Returns an image's metadata, tags, source and variant URLs",
		Tags:        []string{"Images"},
	}, s.handleGetImage)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteImage",
		Method:        http.MethodDelete,
		Path:          "/images/{hash}",
		Summary:       "Delete image",
		Description:   "Deletes an image with its metadata, tag associations and stored bytes. Tags themselves are kept.",
		Tags:          []string{"Images"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "replaceImageTags",
		Method:      http.MethodPut,
		Path:        "/images/{hash}/tags",
		Summary:     "Replace image tags",
		Description: "Replaces the full tag set of an image. Tags no longer used keep their rows.",
		Tags:        []string{"Images"},
	}, s.handleReplaceImageTags)
}

// === DTOs ===

// ListImagesInput contains parameters for listing images.
type ListImagesInput struct {
	Tags  string `query:"tags" doc:"Tag query, e.g. 'cat -outdoor order:filesize'"`
	Page  int    `query:"page" default:"1" doc:"1-based page number"`
	Limit int    `query:"limit" default:"20" doc:"Page size (max 1000)"`
}

// ImageListResponse is one page of images.
type ImageListResponse struct {
	Images []service.MediaView `json:"images" doc:"Matching images in query order"`
	Page   int                 `json:"page" doc:"Page number"`
	Limit  int                 `json:"limit" doc:"Page size"`
}

// ImageListOutput wraps the image list response for Huma.
type ImageListOutput struct {
	Body ImageListResponse
}

// CountImagesInput contains parameters for counting images.
type CountImagesInput struct {
	Tags string `query:"tags" doc:"Tag query"`
}

// CountResponse carries a count.
type CountResponse struct {
	Count int64 `json:"count" doc:"Number of matching images"`
}

// CountOutput wraps a count response for Huma.
type CountOutput struct {
	Body CountResponse
}

// ImageHashInput identifies an image by content hash.
type ImageHashInput struct {
	Hash string `path:"hash" doc:"16-character hex content hash"`
}

// ImageOutput wraps a media view for Huma.
type ImageOutput struct {
	Body service.MediaView
}

// ReplaceTagsRequest is the request body for replacing tags.
type ReplaceTagsRequest struct {
	Tags []string `json:"tags" maxItems:"64" doc:"Complete new tag set"`
}

// ReplaceTagsInput wraps the replace tags request for Huma.
type ReplaceTagsInput struct {
	Hash string `path:"hash" doc:"16-character hex content hash"`
	Body ReplaceTagsRequest
}

// === Handlers ===

func (s *Server) handleListImages(ctx context.Context, input *ListImagesInput) (*ImageListOutput, error) {
	page, err := query.NewPagination(input.Page, input.Limit)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Images.List(ctx, input.Tags, page)
	if err != nil {
		return nil, err
	}

	return &ImageListOutput{Body: ImageListResponse{
		Images: result.Items,
		Page:   result.Page,
		Limit:  result.Limit,
	}}, nil
}

func (s *Server) handleCountImages(ctx context.Context, input *CountImagesInput) (*CountOutput, error) {
	n, err := s.services.Images.Count(ctx, input.Tags)
	if err != nil {
		return nil, err
	}
	return &CountOutput{Body: CountResponse{Count: n}}, nil
}

func (s *Server) handleGetImage(ctx context.Context, input *ImageHashInput) (*ImageOutput, error) {
	view, err := s.services.Images.Get(ctx, input.Hash)
	if err != nil {
		return nil, err
	}
	return &ImageOutput{Body: *view}, nil
}

func (s *Server) handleDeleteImage(ctx context.Context, input *ImageHashInput) (*struct{}, error) {
	if err := s.services.Images.Delete(ctx, input.Hash); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleReplaceImageTags(ctx context.Context, input *ReplaceTagsInput) (*ImageOutput, error) {
	view, err := s.services.Images.ReplaceTags(ctx, input.Hash, input.Body.Tags)
	if err != nil {
		return nil, err
	}
	return &ImageOutput{Body: *view}, nil
}
