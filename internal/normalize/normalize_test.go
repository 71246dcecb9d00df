package normalize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  hello   world ", "hello world"},
		{"line\none\ttwo", "line one two"},
		{"", ""},
		{"single", "single"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSpellDigits(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Chapter 12", "Chapter onetwo"},
		{"0", "nil"},
		{"no digits", "no digits"},
		{"9 lives", "nine lives"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SpellDigits(tt.input); got != tt.expected {
				t.Errorf("SpellDigits(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCharCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"abc", 3},
		{"a, b; c", 3},
		{"Why? Now!", 8},
		{"End.", 4},
		{"7", 5},       // "seven"
		{"Café", 4},    // letters outside ASCII still count
		{"a - b", 2},   // dashes and spaces do not
		{"snake_case", 10},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CharCount(tt.input); got != tt.expected {
				t.Errorf("CharCount(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGrammar(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"long sentence", "The quick brown fox jumps.", "The quick brown fox jumps."},
		{"exactly four words", "One two three four.", ""},
		{"quotes removed", `He said "go home now" quietly.`, "He said go home now quietly."},
		{"no ascii letters", "1 2 3 4 5 6", ""},
		{"whitespace collapsed", "  a   b c d  e ", "a b c d e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Grammar(tt.input); got != tt.expected {
				t.Errorf("Grammar(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchKey(t *testing.T) {
	a := MatchKey(`"Hello," she said.  Goodbye!`)
	b := MatchKey("hello she said goodbye")
	if a != b {
		t.Errorf("MatchKey mismatch: %q vs %q", a, b)
	}
}

func TestASCII(t *testing.T) {
	if got := ASCII("Café Noël"); got != "Cafe Noel" {
		t.Errorf("ASCII = %q, want %q", got, "Cafe Noel")
	}
	if got := ASCII("日本"); got != "" {
		t.Errorf("ASCII = %q, want empty", got)
	}
}
