// Package normalize provides the text rules shared by ingest, alignment and search:
// whitespace normalization, digit spelling, character counting, grammar phrases
// and recognition match keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	// Characters that contribute to spoken length.
	countable   = regexp.MustCompile(`[\p{L}\p{N}_?!.]`)
	asciiLetter = regexp.MustCompile(`[a-zA-Z]`)
)

//nolint:gochecknoglobals // Static lookup table for digit spelling
var digitWords = [10]string{"nil", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// MinGrammarWords is the word count a sentence must exceed to be offered to a recognizer.
const MinGrammarWords = 4

// Text trims s and collapses every whitespace run to a single space.
func Text(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// SpellDigits replaces every ASCII digit with its English word.
// "Chapter 12" -> "Chapter onetwo".
func SpellDigits(s string) string {
	if strings.IndexFunc(s, isDigit) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) * 2)
	for _, r := range s {
		if isDigit(r) {
			b.WriteString(digitWords[r-'0'])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CharCount returns the spoken-length weight of s: the number of letters, digits,
// underscores and sentence marks after digits are spelled out.
func CharCount(s string) int {
	return len(countable.FindAllStringIndex(SpellDigits(s), -1))
}

// Grammar returns the exact phrase a recognizer should listen for, or "" when the
// sentence is too short or carries no ASCII letters.
func Grammar(s string) string {
	s = Text(s)
	if !asciiLetter.MatchString(s) {
		return ""
	}
	if len(strings.Split(s, " ")) <= MinGrammarWords {
		return ""
	}
	return strings.ReplaceAll(s, `"`, "")
}

// MatchKey reduces s to the form used to compare recognized utterances with
// sentence text: punctuation removed, whitespace collapsed, case folded.
func MatchKey(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(Text(s))
}

// ASCII transliterates s to a plain ASCII form by decomposing accented
// characters and dropping whatever is left outside ASCII.
// "Café Noël" -> "Cafe Noel".
func ASCII(s string) string {
	s = norm.NFKD.String(s)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
