package chapters

import (
	"testing"

	"github.com/listenupapp/listenup-align/internal/domain"
)

func TestTitleKey(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Chapter One: The Beginning", "The Beginning"},
		{"Part 1: Book 2: The End", "The End"},
		{"No colon here", "No colon here"},
		{"Chapter 3: “Quoted”, Title;", "Quoted Title"},
		{"Épilogue", "Epilogue"},
		{"Chapter 9:", ""},
		{"Глава 1: Начало", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := TitleKey(tt.title); got != tt.expected {
				t.Errorf("TitleKey(%q) = %q, want %q", tt.title, got, tt.expected)
			}
		})
	}
}

func TestDetect_ChapterStructure(t *testing.T) {
	titles := []string{"Chapter One: The Beginning", "Chapter Two: Middle"}
	files := []string{"/audio/01 - The Beginning.mp3", "/audio/02 - Middle.mp3"}

	d := Detect(titles, files)

	if d.Structure != domain.StructureChapter {
		t.Fatalf("expected chapter structure, got %s", d.Structure)
	}
	if d.ChapterFiles[0] != 0 || d.ChapterFiles[1] != 1 {
		t.Errorf("unexpected assignments: %v", d.ChapterFiles)
	}
}

func TestDetect_SecondChapterUnmatched(t *testing.T) {
	titles := []string{"Chapter One: The Beginning", "Chapter Two: Elsewhere"}
	files := []string{"/audio/01 - The Beginning.mp3", "/audio/02 - Middle.mp3"}

	d := Detect(titles, files)

	if d.Structure != domain.StructureMultiFile {
		t.Errorf("expected multi-file structure, got %s", d.Structure)
	}
	if d.ChapterFiles[0] != 0 {
		t.Errorf("first chapter should still match file 0, got %d", d.ChapterFiles[0])
	}
	if d.ChapterFiles[1] != domain.UnknownFile {
		t.Errorf("second chapter should be unmatched, got %d", d.ChapterFiles[1])
	}
}

func TestDetect_OrderMatters(t *testing.T) {
	// Titles in reverse order of their files: the second title cannot go back.
	titles := []string{"Middle", "The Beginning"}
	files := []string{"01 - The Beginning.mp3", "02 - Middle.mp3"}

	d := Detect(titles, files)

	if d.ChapterFiles[0] != 1 {
		t.Errorf("expected first title to match file 1, got %d", d.ChapterFiles[0])
	}
	if d.ChapterFiles[1] != domain.UnknownFile {
		t.Errorf("expected second title to stay unmatched, got %d", d.ChapterFiles[1])
	}
	if d.Structure == domain.StructureChapter {
		t.Error("out-of-order titles must not yield chapter structure")
	}
}

func TestDetect_CaseAndAccentInsensitive(t *testing.T) {
	d := Detect([]string{"Prologue: Café Society"}, []string{"/x/CAFE SOCIETY.m4b"})
	if d.Structure != domain.StructureChapter {
		t.Errorf("expected chapter structure, got %s", d.Structure)
	}
}

func TestDetect_SingleFile(t *testing.T) {
	d := Detect([]string{"One", "Two"}, []string{"/x/book.mp3"})
	if d.Structure != domain.StructureSingleFile {
		t.Errorf("expected single file structure, got %s", d.Structure)
	}
}

func TestDetect_EmptyKeyNeverMatches(t *testing.T) {
	d := Detect([]string{"Chapter 1:"}, []string{"/x/anything.mp3"})
	if d.ChapterFiles[0] != domain.UnknownFile {
		t.Errorf("empty key matched file %d", d.ChapterFiles[0])
	}
}

func TestDetect_UnmatchedChapterKeepsCursor(t *testing.T) {
	// The miss on "Interlude" does not rewind the search to the first file.
	titles := []string{"Middle", "Interlude", "The Beginning"}
	files := []string{"01 - The Beginning.mp3", "02 - Middle.mp3"}

	d := Detect(titles, files)

	if d.ChapterFiles[0] != 1 {
		t.Errorf("expected first title to match file 1, got %d", d.ChapterFiles[0])
	}
	if d.ChapterFiles[2] != domain.UnknownFile {
		t.Errorf("expected third title to stay unmatched, got %d", d.ChapterFiles[2])
	}
}

func TestDetect_NonLatinTitlesNeverMatch(t *testing.T) {
	d := Detect([]string{"Глава 1: Начало"}, []string{"/x/Начало.mp3"})
	if d.ChapterFiles[0] != domain.UnknownFile {
		t.Errorf("non-Latin title matched file %d", d.ChapterFiles[0])
	}
}

func TestDetect_Deterministic(t *testing.T) {
	titles := []string{"A: Alpha", "B: Beta", "C: Gamma"}
	files := []string{"1 alpha.mp3", "2 beta.mp3", "3 gamma.mp3"}

	first := Detect(titles, files)
	for range 10 {
		again := Detect(titles, files)
		if again.Structure != first.Structure {
			t.Fatalf("structure changed between runs")
		}
		for i := range first.ChapterFiles {
			if again.ChapterFiles[i] != first.ChapterFiles[i] {
				t.Fatalf("assignment %d changed between runs", i)
			}
		}
	}
}

func TestDetectBook_TagsSentences(t *testing.T) {
	book := &domain.Book{
		AudioFiles: []domain.AudioFile{{Path: "/a/01 - The Beginning.mp3"}, {Path: "/a/02 - Middle.mp3"}},
		Chapters: []*domain.Chapter{
			{Title: "Chapter One: The Beginning", Sentences: []*domain.Sentence{domain.NewSentence("One."), domain.NewSentence("Two.")}},
			{Title: "Chapter Two: Middle", Sentences: []*domain.Sentence{domain.NewSentence("Three.")}},
		},
	}

	d := DetectBook(book)

	if d.Structure != domain.StructureChapter {
		t.Fatalf("expected chapter structure, got %s", d.Structure)
	}
	for _, s := range book.Chapters[0].Sentences {
		if s.First().FileIndex != 0 {
			t.Errorf("chapter one sentence tagged with file %d", s.First().FileIndex)
		}
	}
	if book.Chapters[1].FileIndex() != 1 {
		t.Errorf("chapter two tagged with file %d", book.Chapters[1].FileIndex())
	}
}
