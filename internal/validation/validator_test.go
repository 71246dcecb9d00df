package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/validation"
)

type submitRequest struct {
	Book *domain.Book `json:"book" validate:"required"`
	Mode string       `json:"mode" validate:"omitempty,oneof=recognition estimation"`
}

func validBook() *domain.Book {
	return &domain.Book{
		Title:      "Moby Dick",
		AudioFiles: []domain.AudioFile{{Path: "/books/moby/01.mp3"}},
		Chapters: []*domain.Chapter{{
			Title:     "Loomings",
			Sentences: []*domain.Sentence{domain.NewSentence("Call me Ishmael.")},
		}},
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(submitRequest{Book: validBook(), Mode: "estimation"})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name   string
		mutate func(*submitRequest)
		field  string
	}{
		{
			name:   "missing book",
			mutate: func(r *submitRequest) { r.Book = nil },
			field:  "book",
		},
		{
			name:   "missing title",
			mutate: func(r *submitRequest) { r.Book.Title = "" },
			field:  "book.title",
		},
		{
			name:   "no audio files",
			mutate: func(r *submitRequest) { r.Book.AudioFiles = nil },
			field:  "book.audio_files",
		},
		{
			name:   "empty audio path",
			mutate: func(r *submitRequest) { r.Book.AudioFiles[0].Path = "" },
			field:  "book.audio_files[0].path",
		},
		{
			name:   "empty sentence",
			mutate: func(r *submitRequest) { r.Book.Chapters[0].Sentences[0].Text = "" },
			field:  "book.chapters[0].sentences[0].text",
		},
		{
			name:   "bad checksum",
			mutate: func(r *submitRequest) { r.Book.Checksum = "not-hex" },
			field:  "book.checksum",
		},
		{
			name:   "unknown mode",
			mutate: func(r *submitRequest) { r.Mode = "guess" },
			field:  "mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := submitRequest{Book: validBook()}
			tt.mutate(&req)

			err := v.Validate(req)
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

			var derr *domainerrors.Error
			require.ErrorAs(t, err, &derr)
			details, ok := derr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.field)
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := submitRequest{Book: validBook()}
	req.Book.Title = ""

	err := v.Validate(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "book.title")
	assert.NotContains(t, err.Error(), "Title")
}
