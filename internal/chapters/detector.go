package chapters

import (
	"path/filepath"
	"strings"

	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/normalize"
)

// stripped are removed from titles before matching: quotes, separators and
// typographic marks that file names rarely carry.
var stripped = strings.NewReplacer(
	"´", "", "`", "", `"`, "", "’", "", "‘", "", "“", "", "”", "",
	";", "", ",", "", "،", "", "、", "", "″", "", "~", "", "*", "",
)

// TitleKey derives the string searched for in file names: the part of the
// title after its last colon, transliterated to ASCII, with quotes and
// punctuation removed.
// "Chapter One: The Beginning" -> "The Beginning".
// Scripts with no ASCII decomposition reduce to an empty key.
func TitleKey(title string) string {
	if i := strings.LastIndex(title, ":"); i >= 0 {
		title = title[i+1:]
	}
	return strings.TrimSpace(stripped.Replace(normalize.ASCII(title)))
}

// fileKey is the ASCII base name of path without its extension.
func fileKey(path string) string {
	base := filepath.Base(path)
	return normalize.ASCII(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Detect matches chapter titles to audio files in a single ordered pass.
// Each chapter is tested against the files after the last matched one, so
// titles must appear in the same relative order as their files. A chapter that
// matches nothing leaves the cursor where it was. The layout is
// StructureChapter only when every file matched exactly one chapter.
func Detect(titles []string, files []string) Detection {
	d := Detection{ChapterFiles: make([]int, len(titles))}
	next := 0
	for c, title := range titles {
		d.ChapterFiles[c] = domain.UnknownFile
		key := strings.ToLower(TitleKey(title))
		if key == "" {
			continue
		}
		for i := next; i < len(files); i++ {
			if strings.Contains(strings.ToLower(fileKey(files[i])), key) {
				d.ChapterFiles[c] = i
				d.Matches++
				next = i + 1
				break
			}
		}
	}

	switch {
	case len(files) > 0 && d.Matches == len(files):
		d.Structure = domain.StructureChapter
	case len(files) == 1:
		d.Structure = domain.StructureSingleFile
	default:
		d.Structure = domain.StructureMultiFile
	}
	return d
}

// DetectBook runs Detect over a book and tags every sentence of each matched
// chapter with its file index.
func DetectBook(book *domain.Book) Detection {
	titles := make([]string, len(book.Chapters))
	for i, ch := range book.Chapters {
		titles[i] = ch.Title
	}
	d := Detect(titles, book.AudioPaths())
	for i, ch := range book.Chapters {
		if d.ChapterFiles[i] != domain.UnknownFile {
			ch.AssignFile(d.ChapterFiles[i])
		}
	}
	return d
}
