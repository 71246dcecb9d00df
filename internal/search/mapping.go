package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for sentence documents.
// Sentence text is analyzed in English with term vectors for highlighting.
// Book and ID are exact keywords; positions are stored numerics.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	textFieldMapping.Store = true
	textFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("text", textFieldMapping)

	chapterTitleFieldMapping := bleve.NewTextFieldMapping()
	chapterTitleFieldMapping.Analyzer = en.AnalyzerName
	chapterTitleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chapter_title", chapterTitleFieldMapping)

	bookTitleFieldMapping := bleve.NewTextFieldMapping()
	bookTitleFieldMapping.Analyzer = en.AnalyzerName
	bookTitleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("book_title", bookTitleFieldMapping)

	for _, name := range []string{"id", "book"} {
		kw := bleve.NewTextFieldMapping()
		kw.Analyzer = keyword.Name
		kw.Store = true
		docMapping.AddFieldMappingsAt(name, kw)
	}

	for _, name := range []string{"chapter", "sentence", "file_index", "position", "duration"} {
		num := bleve.NewNumericFieldMapping()
		num.Store = true
		docMapping.AddFieldMappingsAt(name, num)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
