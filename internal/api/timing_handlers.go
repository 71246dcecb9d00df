package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-align/internal/api/dto"
)

func (s *Server) registerTimingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getTiming",
		Method:      http.MethodGet,
		Path:        "/api/v1/timings/{checksum}",
		Summary:     "Get timing set",
		Description: "Returns the stored sentence positions of a book",
		Tags:        []string{"Timings"},
	}, s.handleGetTiming)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTimingStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/timings/{checksum}/status",
		Summary:     "Get timing status",
		Description: "Reports whether a timing set or checkpoint is stored and whether its audio still exists",
		Tags:        []string{"Timings"},
	}, s.handleGetTimingStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkTimingStatus",
		Method:      http.MethodPost,
		Path:        "/api/v1/timings/status",
		Summary:     "Check timing status of a book",
		Description: "Loads the stored timings of a re-submitted book and verifies they still fit its chapters, sentences and audio",
		Tags:        []string{"Timings"},
	}, s.handleCheckTimingStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteTiming",
		Method:      http.MethodDelete,
		Path:        "/api/v1/timings/{checksum}",
		Summary:     "Delete timing set",
		Description: "Removes the stored timing set, checkpoint and search entries of a book",
		Tags:        []string{"Timings"},
	}, s.handleDeleteTiming)

	huma.Register(s.api, huma.Operation{
		OperationID: "compareTimings",
		Method:      http.MethodPost,
		Path:        "/api/v1/timings/compare",
		Summary:     "Compare timing sets",
		Description: "Returns per-sentence deltas of timing set b relative to a",
		Tags:        []string{"Timings"},
	}, s.handleCompareTimings)
}

// ChecksumInput names a book by checksum.
type ChecksumInput struct {
	dto.ChecksumParam
}

// TimingOutput wraps a timing set.
type TimingOutput struct {
	Body dto.TimingResponse
}

// TimingStatusOutput wraps a load result.
type TimingStatusOutput struct {
	Body dto.TimingStatusResponse
}

// CheckTimingStatusInput carries the book to check.
type CheckTimingStatusInput struct {
	Body struct {
		Book dto.BookRequest `json:"book" doc:"Book to check"`
	}
}

// CompareTimingsInput names the timing sets to compare.
type CompareTimingsInput struct {
	Body dto.CompareRequest
}

// CompareTimingsOutput wraps a comparison.
type CompareTimingsOutput struct {
	Body dto.DiffResponse
}

func (s *Server) handleGetTiming(ctx context.Context, input *ChecksumInput) (*TimingOutput, error) {
	t, err := s.services.Alignment.Timing(ctx, input.Checksum)
	if err != nil {
		return nil, err
	}
	return &TimingOutput{Body: dto.NewTimingResponse(t)}, nil
}

func (s *Server) handleGetTimingStatus(ctx context.Context, input *ChecksumInput) (*TimingStatusOutput, error) {
	res, err := s.services.Alignment.StoredStatus(ctx, input.Checksum)
	if err != nil {
		return nil, err
	}
	return &TimingStatusOutput{Body: dto.NewTimingStatusResponse(res)}, nil
}

// handleCheckTimingStatus reports a corrupt timing set as a RECONCILIATION
// error whose details list the mismatches.
func (s *Server) handleCheckTimingStatus(ctx context.Context, input *CheckTimingStatusInput) (*TimingStatusOutput, error) {
	res, err := s.services.Alignment.Status(ctx, input.Body.Book.ToDomain())
	if err != nil {
		return nil, err
	}
	return &TimingStatusOutput{Body: dto.NewTimingStatusResponse(res)}, nil
}

func (s *Server) handleDeleteTiming(ctx context.Context, input *ChecksumInput) (*dto.MessageOutput, error) {
	if err := s.services.Alignment.DeleteTiming(ctx, input.Checksum); err != nil {
		return nil, err
	}
	return &dto.MessageOutput{Body: dto.MessageResponse{Message: "timing set deleted"}}, nil
}

func (s *Server) handleCompareTimings(ctx context.Context, input *CompareTimingsInput) (*CompareTimingsOutput, error) {
	diff, err := s.services.Alignment.Compare(ctx, input.Body.A, input.Body.B)
	if err != nil {
		return nil, err
	}
	return &CompareTimingsOutput{Body: dto.NewDiffResponse(diff)}, nil
}
