package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook() *Book {
	return &Book{
		AudioFiles: []AudioFile{
			{Path: "/books/01 - Start.mp3", Duration: 10 * time.Minute},
			{Path: "/books/02 - Middle.mp3", Duration: 20 * time.Minute},
			{Path: "/books/03 - End.mp3", Duration: 5 * time.Minute},
		},
	}
}

func TestBook_FileIndexAt(t *testing.T) {
	b := testBook()

	tests := []struct {
		pos  time.Duration
		want int
	}{
		{0, 0},
		{9 * time.Minute, 0},
		{10 * time.Minute, 1},
		{29 * time.Minute, 1},
		{31 * time.Minute, 2},
		{2 * time.Hour, 2}, // clamped to the last file
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.FileIndexAt(tt.pos), "pos %s", tt.pos)
	}

	assert.Equal(t, UnknownFile, (&Book{}).FileIndexAt(time.Minute))
}

func TestBook_DurationBefore(t *testing.T) {
	b := testBook()
	assert.Equal(t, time.Duration(0), b.DurationBefore(0))
	assert.Equal(t, 30*time.Minute, b.DurationBefore(2))
	assert.Equal(t, 35*time.Minute, b.TotalDuration())
	assert.Equal(t, 35*time.Minute, b.DurationBefore(99))
}

func TestBook_LocalOffset(t *testing.T) {
	b := testBook()
	p := AudioPosition{FileIndex: 1, Position: 12 * time.Minute, Duration: time.Second}
	assert.Equal(t, 2*time.Minute, b.LocalOffset(p))
}

func TestAudioFile_Name(t *testing.T) {
	assert.Equal(t, "01 - Start", AudioFile{Path: "/books/01 - Start.mp3"}.Name())
	assert.Equal(t, "noext", AudioFile{Path: "noext"}.Name())
}

func TestBook_Eligibility(t *testing.T) {
	b := &Book{Chapters: []*Chapter{
		chapterWith(3, "Short one here."),
		chapterWith(20, "Long enough."),
	}}
	b.Prepare()

	chapters, indexes := b.EligibleChapters(MinSentences)
	require.Len(t, chapters, 1)
	assert.Equal(t, []int{1}, indexes)
	assert.Equal(t, 20, b.EligibleSentences(MinSentences))
	assert.Equal(t, 20*b.Chapters[1].Sentences[0].CharCount, b.EligibleChars(MinSentences))
}

func TestSentence_Candidates(t *testing.T) {
	s := NewSentence("  The   quick brown fox jumps over. ")
	assert.Equal(t, "The quick brown fox jumps over.", s.Text)
	assert.True(t, s.HasGrammar())
	require.Len(t, s.Positions, 1)
	assert.Equal(t, UnknownFile, s.First().FileIndex)

	s.AddCandidate(AudioPosition{FileIndex: 0, Position: 5 * time.Second, Duration: time.Second})
	require.Len(t, s.Positions, 1, "first hit fills the empty slot")

	s.AddCandidate(AudioPosition{FileIndex: 0, Position: 50 * time.Second, Duration: time.Second})
	require.Len(t, s.Positions, 2)

	assert.Equal(t, 5*time.Second, s.ClosestPosition(0).Position)
	assert.Equal(t, 50*time.Second, s.ClosestPosition(6*time.Second).Position)
	assert.True(t, s.ClosestPosition(time.Hour).IsEmpty())

	s.Reset()
	require.Len(t, s.Positions, 1)
	assert.True(t, s.First().IsEmpty())
}

func TestSentence_PrepareDropsIneligibleGrammar(t *testing.T) {
	short := &Sentence{Text: "Chapter one.", Grammar: "chapter one"}
	short.Prepare()
	assert.False(t, short.HasGrammar(), "four words or fewer are never offered")

	digits := &Sentence{Text: "1851 - 1852 - 1853 - 1854 - 1855", Grammar: "1851 1852 1853 1854 1855"}
	digits.Prepare()
	assert.False(t, digits.HasGrammar(), "text without letters is never offered")

	custom := &Sentence{Text: "Call me Ishmael, some years ago.", Grammar: "call me ishmael some years ago"}
	custom.Prepare()
	assert.Equal(t, "call me ishmael some years ago", custom.Grammar)
}

func TestChapter_LastSentenceWithValues(t *testing.T) {
	ch := chapterWith(3, "Some words to say here.")
	assert.Nil(t, ch.LastSentenceWithValues())

	ch.Sentences[1].SetFirst(AudioPosition{Position: 4 * time.Second, Duration: 2 * time.Second})
	assert.Same(t, ch.Sentences[1], ch.LastSentenceWithValues())

	end, ok := ch.LastEnd()
	assert.True(t, ok)
	assert.Equal(t, 6*time.Second, end)
}

func TestTiming_SnapshotAndApply(t *testing.T) {
	b := testBook()
	b.Chapters = []*Chapter{chapterWith(2, "Too short."), chapterWith(20, "Enough of these words.")}
	b.Prepare()
	b.Chapters[1].SuccessRate = 80
	b.Chapters[1].Sentences[0].SetFirst(AudioPosition{FileIndex: 0, Position: time.Second, Duration: time.Second})

	timing := NewTiming(b, StructureMultiFile, AlignmentModeEstimation, 12.5, MinSentences)
	require.Len(t, timing.Chapters, 1)
	assert.Equal(t, 1, timing.Chapters[0].Index)

	b.ResetPositions()
	assert.True(t, b.Chapters[1].Sentences[0].First().IsEmpty())

	require.NoError(t, timing.Apply(b))
	assert.Equal(t, 80, b.Chapters[1].SuccessRate)
	assert.Equal(t, time.Second, b.Chapters[1].Sentences[0].First().Position)
}

func chapterWith(n int, text string) *Chapter {
	ch := &Chapter{Title: "Chapter"}
	for range n {
		ch.Sentences = append(ch.Sentences, NewSentence(text))
	}
	return ch
}
