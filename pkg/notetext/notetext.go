// Package notetext provides canonical normalization, change extraction, and
// lexical similarity for clinical note text. All gate decisions and prompt
// snippets operate on the canonical form produced by Normalize.
package notetext

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// zeroWidthReplacer strips zero-width characters that editors and copy/paste
// commonly inject (ZWSP, ZWNJ, ZWJ, BOM).
var zeroWidthReplacer = strings.NewReplacer(
	"\u200b", "", // ZWSP
	"\u200c", "", // ZWNJ
	"\u200d", "", // ZWJ
	"\ufeff", "", // BOM
)

// Normalize produces the canonical form of note text: zero-width characters
// removed, line endings unified to LF, lower-cased, per-line whitespace
// collapsed to single spaces, empty lines dropped. Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = zeroWidthReplacer.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ToLower(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}

// HasSentenceBoundary reports whether the text ends at a sentence boundary:
// a trailing LF, or (after right-trim) a terminal '.', '?', or '!'.
func HasSentenceBoundary(text string) bool {
	if strings.HasSuffix(text, "\n") {
		return true
	}
	trimmed := strings.TrimRight(text, " \t\r\n")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

// TrigramDice computes the Dice coefficient over character-trigram multisets.
// Inputs shorter than three runes contribute an empty multiset. Two empty
// multisets compare as identical (1.0); exactly one empty yields 0.0.
func TrigramDice(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	sa := multisetSize(ta)
	sb := multisetSize(tb)
	if sa == 0 && sb == 0 {
		return 1.0
	}
	if sa == 0 || sb == 0 {
		return 0.0
	}
	inter := 0
	for g, ca := range ta {
		if cb, ok := tb[g]; ok {
			if ca < cb {
				inter += ca
			} else {
				inter += cb
			}
		}
	}
	return 2.0 * float64(inter) / float64(sa+sb)
}

func trigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	grams := make(map[string]int, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])]++
	}
	return grams
}

func multisetSize(m map[string]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Digest returns the hex-encoded sha256 of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first 12 hex characters of the sha256 of s,
// used for compact state summaries in prompts.
func ShortDigest(s string) string {
	return Digest(s)[:12]
}

// Sentences splits text into sentences. A sentence ends at '.', '?', or '!'
// followed by whitespace, or at a newline. Returned sentences are trimmed and
// never empty.
func Sentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()
	return sentences
}
