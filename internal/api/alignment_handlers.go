package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-align/internal/api/dto"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/service"
)

func (s *Server) registerAlignmentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startAlignment",
		Method:        http.MethodPost,
		Path:          "/api/v1/alignments",
		Summary:       "Start alignment",
		Description:   "Submits a book for alignment. Only one job per book may run at a time.",
		Tags:          []string{"Alignments"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartAlignment)

	huma.Register(s.api, huma.Operation{
		OperationID: "listAlignments",
		Method:      http.MethodGet,
		Path:        "/api/v1/alignments",
		Summary:     "List alignments",
		Description: "Lists alignment jobs, newest first",
		Tags:        []string{"Alignments"},
	}, s.handleListAlignments)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAlignment",
		Method:      http.MethodGet,
		Path:        "/api/v1/alignments/{id}",
		Summary:     "Get alignment",
		Description: "Returns an alignment job with its live progress",
		Tags:        []string{"Alignments"},
	}, s.handleGetAlignment)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelAlignment",
		Method:      http.MethodDelete,
		Path:        "/api/v1/alignments/{id}",
		Summary:     "Cancel alignment",
		Description: "Cancels a running alignment job and returns its final state",
		Tags:        []string{"Alignments"},
	}, s.handleCancelAlignment)
}

// StartAlignmentInput contains the book to align.
type StartAlignmentInput struct {
	ClientIP
	Body dto.StartAlignmentRequest
}

// AlignmentOutput wraps a single job.
type AlignmentOutput struct {
	Body dto.JobResponse
}

// ListAlignmentsInput filters the job list.
type ListAlignmentsInput struct {
	Book   string `query:"book" doc:"Only jobs of this book checksum"`
	Status string `query:"status" enum:"pending,running,completed,failed,cancelled" doc:"Only jobs in this state"`
}

// ListAlignmentsOutput wraps the job list.
type ListAlignmentsOutput struct {
	Body dto.ListResponse[dto.JobResponse]
}

// AlignmentIDInput names a job.
type AlignmentIDInput struct {
	dto.IDParam
}

func (s *Server) handleStartAlignment(ctx context.Context, input *StartAlignmentInput) (*AlignmentOutput, error) {
	if err := s.checkRateLimit(input.ip, "/api/v1/alignments"); err != nil {
		return nil, err
	}

	job, err := s.services.Alignment.Start(ctx, service.StartRequest{
		Book: input.Body.Book.ToDomain(),
		Mode: domain.AlignmentMode(input.Body.Mode),
	})
	if err != nil {
		return nil, err
	}
	return &AlignmentOutput{Body: dto.NewJobResponse(job)}, nil
}

func (s *Server) handleListAlignments(ctx context.Context, input *ListAlignmentsInput) (*ListAlignmentsOutput, error) {
	jobs, err := s.services.Alignment.List(ctx, service.ListFilter{
		Book:   input.Book,
		Status: domain.AlignmentStatus(input.Status),
	})
	if err != nil {
		return nil, err
	}
	items := dto.NewJobResponses(jobs)
	return &ListAlignmentsOutput{Body: dto.ListResponse[dto.JobResponse]{Items: items, Total: len(items)}}, nil
}

func (s *Server) handleGetAlignment(ctx context.Context, input *AlignmentIDInput) (*AlignmentOutput, error) {
	job, err := s.services.Alignment.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &AlignmentOutput{Body: dto.NewJobResponse(job)}, nil
}

func (s *Server) handleCancelAlignment(ctx context.Context, input *AlignmentIDInput) (*AlignmentOutput, error) {
	job, err := s.services.Alignment.Cancel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &AlignmentOutput{Body: dto.NewJobResponse(job)}, nil
}
