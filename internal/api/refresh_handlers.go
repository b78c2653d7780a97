package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

func (s *Server) registerRefreshRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "refreshTagCounts",
		Method:        http.MethodPut,
		Path:          "/refresh/tag_counts",
		Summary:       "Refresh tag counts",
		Description:   "Recomputes every cached tag count. Runs inline (204) or, when a queue is configured, in the background (202 with a task id).",
		Tags:          []string{"Maintenance"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRefreshTagCounts)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRefreshStatus",
		Method:      http.MethodGet,
		Path:        "/refresh/tag_counts/{id}",
		Summary:     "Get refresh status",
		Description: "Returns the state of a queued tag count refresh",
		Tags:        []string{"Maintenance"},
	}, s.handleGetRefreshStatus)
}

// === DTOs ===

// RefreshQueuedResponse identifies a queued refresh.
type RefreshQueuedResponse struct {
	TaskID string `json:"task_id" doc:"Task id for status polling"`
	Status string `json:"status" doc:"Initial task status"`
}

// RefreshQueuedOutput wraps the queued refresh response for Huma.
type RefreshQueuedOutput struct {
	Status   int
	Location string `header:"Location"`
	Body     RefreshQueuedResponse
}

// RefreshStatusInput identifies a queued refresh.
type RefreshStatusInput struct {
	ID string `path:"id" doc:"Task id"`
}

// RefreshStatusResponse is the stored state of a refresh task.
type RefreshStatusResponse struct {
	TaskID    string `json:"task_id" doc:"Task id"`
	Status    string `json:"status" doc:"PENDING, STARTED, SUCCESS or FAILURE"`
	Message   string `json:"message,omitempty" doc:"Failure message"`
	UpdatedAt string `json:"updated_at" doc:"Time of the last state change"`
}

// RefreshStatusOutput wraps the refresh status response for Huma.
type RefreshStatusOutput struct {
	Body RefreshStatusResponse
}

// === Handlers ===

func (s *Server) handleRefreshTagCounts(ctx context.Context, _ *struct{}) (*RefreshQueuedOutput, error) {
	if s.services.Refresh == nil {
		if err := s.services.Tags.Refresh(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	taskID, err := s.services.Refresh.EnqueueRefresh(ctx)
	if err != nil {
		return nil, err
	}

	return &RefreshQueuedOutput{
		Status:   http.StatusAccepted,
		Location: "/refresh/tag_counts/" + taskID,
		Body:     RefreshQueuedResponse{TaskID: taskID, Status: "PENDING"},
	}, nil
}

func (s *Server) handleGetRefreshStatus(ctx context.Context, input *RefreshStatusInput) (*RefreshStatusOutput, error) {
	if s.services.Refresh == nil {
		return nil, domainerrors.NotFound("no refresh queue is configured")
	}

	state, err := s.services.Refresh.Status(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &RefreshStatusOutput{Body: RefreshStatusResponse{
		TaskID:    input.ID,
		Status:    string(state.Status),
		Message:   state.Message,
		UpdatedAt: state.UpdatedAt,
	}}, nil
}
