package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a sentence search.
type SearchParams struct {
	Query string // Words or phrase to find
	Book  string // Restrict to one book checksum (empty = all books)

	Limit  int
	Offset int

	// SortBy is "relevance" (default) or "position" (book order).
	SortBy    string
	Highlight bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:     20,
		SortBy:    "relevance",
		Highlight: true,
	}
}

// SearchResult holds the matching sentences.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one matching sentence with its place in the audio.
type SearchHit struct {
	ID           string        `json:"id"`
	Score        float64       `json:"score"`
	Book         string        `json:"book"`
	BookTitle    string        `json:"book_title,omitempty"`
	Chapter      int           `json:"chapter"`
	ChapterTitle string        `json:"chapter_title,omitempty"`
	Sentence     int           `json:"sentence"`
	Text         string        `json:"text"`
	FileIndex    int           `json:"file_index"`
	Position     time.Duration `json:"position,format:nano"`
	Duration     time.Duration `json:"duration,format:nano"`
	Highlight    string        `json:"highlight,omitempty"`
}

var storedFields = []string{
	"book", "book_title", "chapter", "chapter_title", "sentence",
	"text", "file_index", "position", "duration",
}

// Search executes a sentence search.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	if params.SortBy == "position" {
		req.SortBy([]string{"book", "chapter", "sentence"})
	} else {
		req.SortBy([]string{"-_score", "book", "chapter", "sentence"})
	}
	if params.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("text")
	}
	req.Fields = storedFields

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		h.Book, _ = hit.Fields["book"].(string)
		h.BookTitle, _ = hit.Fields["book_title"].(string)
		h.ChapterTitle, _ = hit.Fields["chapter_title"].(string)
		h.Text, _ = hit.Fields["text"].(string)
		if v, ok := hit.Fields["chapter"].(float64); ok {
			h.Chapter = int(v)
		}
		if v, ok := hit.Fields["sentence"].(float64); ok {
			h.Sentence = int(v)
		}
		if v, ok := hit.Fields["file_index"].(float64); ok {
			h.FileIndex = int(v)
		}
		if v, ok := hit.Fields["position"].(float64); ok {
			h.Position = millis(v)
		}
		if v, ok := hit.Fields["duration"].(float64); ok {
			h.Duration = millis(v)
		}
		if fragments := hit.Fragments["text"]; len(fragments) > 0 {
			h.Highlight = fragments[0]
		}
		result.Hits = append(result.Hits, h)
	}
	return result, nil
}

// buildSearchQuery matches the words of the query in sentence text, ranking
// exact phrases first. A book filter is ANDed in.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		phrase := bleve.NewMatchPhraseQuery(params.Query)
		phrase.SetField("text")
		phrase.SetBoost(3.0)

		words := bleve.NewMatchQuery(params.Query)
		words.SetField("text")
		words.SetOperator(query.MatchQueryOperatorAnd)

		fuzzy := bleve.NewMatchQuery(params.Query)
		fuzzy.SetField("text")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.5)
		fuzzy.SetOperator(query.MatchQueryOperatorAnd)

		queries = append(queries, bleve.NewDisjunctionQuery(phrase, words, fuzzy))
	}

	if params.Book != "" {
		bq := bleve.NewTermQuery(params.Book)
		bq.SetField("book")
		queries = append(queries, bq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
