package notetext

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// InsertRange is a half-open [Start, End) rune range into the new text that
// was inserted without replacing old content.
type InsertRange struct {
	Start int
	End   int
}

var dmp = func() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 0
	return d
}()

// ChangedSpans diffs two canonical texts at character granularity and returns
// the concatenated old-side and new-side changed spans plus the ranges of pure
// insertions. A deletion immediately followed by an insertion is a
// replacement: both sides contribute, and no insert range is recorded.
// Per-opcode pieces are trimmed and joined with LF.
func ChangedSpans(oldText, newText string) (oldSpan, newSpan string, inserts []InsertRange) {
	if oldText == newText {
		return "", "", nil
	}

	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var oldPieces, newPieces []string
	newPos := 0
	prevWasDelete := false
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			newPos += len([]rune(d.Text))
			prevWasDelete = false
		case diffmatchpatch.DiffDelete:
			if piece := strings.TrimSpace(d.Text); piece != "" {
				oldPieces = append(oldPieces, piece)
			}
			prevWasDelete = true
		case diffmatchpatch.DiffInsert:
			n := len([]rune(d.Text))
			if piece := strings.TrimSpace(d.Text); piece != "" {
				newPieces = append(newPieces, piece)
			}
			if !prevWasDelete {
				inserts = append(inserts, InsertRange{Start: newPos, End: newPos + n})
			}
			newPos += n
			prevWasDelete = false
		}
	}

	return strings.Join(oldPieces, "\n"), strings.Join(newPieces, "\n"), inserts
}
