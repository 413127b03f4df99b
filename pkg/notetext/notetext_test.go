package notetext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"lowercases", "Chest Pain", "chest pain"},
		{"collapses whitespace", "chest   pain\t worse", "chest pain worse"},
		{"unifies line endings", "a\r\nb\rc", "a\nb\nc"},
		{"drops empty lines", "a\n\n\nb", "a\nb"},
		{"strips zero width", "ch\u200best\u200c pa\u200din\ufeff", "chest pain"},
		{"trims line edges", "  a b  \n  c  ", "a b\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Plain sentence.",
		"MIXED Case\r\nwith\t\ttabs\n\nand blanks",
		"zero\u200bwidth\ufeff",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestHasSentenceBoundary(t *testing.T) {
	assert.True(t, HasSentenceBoundary("note text\n"))
	assert.True(t, HasSentenceBoundary("ends with period."))
	assert.True(t, HasSentenceBoundary("really?  "))
	assert.True(t, HasSentenceBoundary("now!"))
	assert.False(t, HasSentenceBoundary("trailing words"))
	assert.False(t, HasSentenceBoundary(""))
	assert.False(t, HasSentenceBoundary("   "))
}

func TestChangedSpansIdentical(t *testing.T) {
	oldSpan, newSpan, inserts := ChangedSpans("same text.", "same text.")
	assert.Empty(t, oldSpan)
	assert.Empty(t, newSpan)
	assert.Empty(t, inserts)
}

func TestChangedSpansPureInsert(t *testing.T) {
	oldText := "patient stable."
	newText := "patient stable. started lisinopril."
	oldSpan, newSpan, inserts := ChangedSpans(oldText, newText)

	assert.Empty(t, oldSpan)
	assert.Contains(t, newSpan, "started lisinopril.")
	require.NotEmpty(t, inserts)
	// The recorded range must cover the inserted text within the new string.
	runes := []rune(newText)
	joined := ""
	for _, r := range inserts {
		joined += string(runes[r.Start:r.End])
	}
	assert.Contains(t, joined, "lisinopril")
}

func TestChangedSpansReplace(t *testing.T) {
	oldSpan, newSpan, inserts := ChangedSpans("bp 120/80 today.", "bp 170/110 today.")
	assert.NotEmpty(t, oldSpan)
	assert.Contains(t, newSpan, "7")
	assert.Contains(t, newSpan, "11")
	// Replacement, not insertion: no insert ranges.
	assert.Empty(t, inserts)
}

func TestTrigramDice(t *testing.T) {
	assert.Equal(t, 1.0, TrigramDice("", ""))
	assert.Equal(t, 1.0, TrigramDice("ab", "x"))
	assert.Equal(t, 0.0, TrigramDice("abcdef", ""))
	assert.Equal(t, 0.0, TrigramDice("", "abcdef"))
	assert.Equal(t, 1.0, TrigramDice("identical span", "identical span"))

	a, b := "chest pain worse", "chest pain better"
	d := TrigramDice(a, b)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 1.0)
	assert.InDelta(t, d, TrigramDice(b, a), 1e-12, "dice must be symmetric")
}

func TestTrigramDiceDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, TrigramDice("aaaa", "bbbb"))
}

func TestSentences(t *testing.T) {
	got := Sentences("first sentence. second one? third!\nfourth line no punct")
	require.Len(t, got, 4)
	assert.Equal(t, "first sentence.", got[0])
	assert.Equal(t, "second one?", got[1])
	assert.Equal(t, "third!", got[2])
	assert.Equal(t, "fourth line no punct", got[3])
}

func TestSentencesAbbreviationNotSplit(t *testing.T) {
	// A period not followed by whitespace does not end a sentence.
	got := Sentences("bp was 120/80 (see v1.2 chart). done.")
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "bp was"))
}

func TestShortDigest(t *testing.T) {
	assert.Len(t, ShortDigest("abc"), 12)
	assert.Equal(t, Digest("abc")[:12], ShortDigest("abc"))
}
