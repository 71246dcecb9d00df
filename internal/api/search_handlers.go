package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-align/internal/api/dto"
	"github.com/listenupapp/listenup-align/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchSentences",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search sentences",
		Description: "Finds aligned sentences by text and returns where they are narrated",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains parameters for searching aligned sentences.
type SearchInput struct {
	Query     string `query:"q" minLength:"1" maxLength:"200" doc:"Words or phrase to find"`
	Book      string `query:"book" doc:"Only sentences of this book checksum"`
	Limit     int    `query:"limit" minimum:"0" maximum:"100" doc:"Max results (default 20)"`
	Offset    int    `query:"offset" minimum:"0" doc:"Pagination offset (default 0)"`
	Sort      string `query:"sort" enum:"relevance,position" doc:"Order by relevance (default) or book position"`
	Highlight bool   `query:"highlight" default:"true" doc:"Mark matches in the text"`
}

// SearchOutput wraps the search result.
type SearchOutput struct {
	Body dto.SearchResponse
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	params := search.DefaultSearchParams()
	params.Query = strings.TrimSpace(input.Query)
	params.Book = input.Book
	params.Offset = input.Offset
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	if input.Sort != "" {
		params.SortBy = input.Sort
	}
	params.Highlight = input.Highlight

	res, err := s.services.Alignment.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: dto.NewSearchResponse(res)}, nil
}
