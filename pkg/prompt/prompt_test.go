package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/clinscribe/pkg/llm"
	"github.com/clinscribe/clinscribe/pkg/models"
	"github.com/clinscribe/clinscribe/pkg/scrub"
)

// passthroughScrubber lets tests assert on exact section content.
type passthroughScrubber struct{}

func (passthroughScrubber) Scrub(text string) string { return text }

// markingScrubber proves every free-text field went through the scrubber.
type markingScrubber struct{}

func (markingScrubber) Scrub(text string) string {
	if text == "" {
		return ""
	}
	return "§" + text
}

type staticGuidelines struct{ tips []string }

func (g staticGuidelines) Tips() []string { return g.tips }

func newTestBuilder(scrubber Scrubber, guidelines GuidelineSource) *Builder {
	return NewBuilder("2025-06", "v3", 32, scrubber, guidelines)
}

func TestStableBlockShape(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	messages, state, tokens := b.Stable("gpt-4o")
	require.Len(t, messages, 3)
	assert.Equal(t, CacheMiss, state)
	assert.Greater(t, tokens, 0)

	for _, m := range messages {
		assert.Equal(t, llm.RoleSystem, m.Role)
	}
	assert.Contains(t, messages[1].Content, "schema version 2025-06")
	assert.Contains(t, messages[1].Content, `"suggestions"`)
	assert.Contains(t, messages[2].Content, "v3")
}

func TestStableBlockCacheHit(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	first, state, firstTokens := b.Stable("gpt-4o")
	require.Equal(t, CacheMiss, state)

	second, state, secondTokens := b.Stable("GPT-4o ") // normalized to the same key
	assert.Equal(t, CacheHit, state)
	assert.Equal(t, firstTokens, secondTokens)
	assert.Equal(t, first, second)
}

func TestStableBlockDefensiveCopy(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	first, _, _ := b.Stable("gpt-4o")
	first[0].Content = "mutated"

	second, state, _ := b.Stable("gpt-4o")
	assert.Equal(t, CacheHit, state)
	assert.NotEqual(t, "mutated", second[0].Content)
}

func TestStableCacheEviction(t *testing.T) {
	c := newStableCache(2)
	c.put("a", stableEntry{tokenEstimate: 1})
	c.put("b", stableEntry{tokenEstimate: 2})

	// Touch "a" so "b" is the eviction candidate.
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", stableEntry{tokenEstimate: 3})
	assert.Equal(t, 2, c.len())

	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestDynamicEmptyContext(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	msg := b.Dynamic(DynamicContext{})
	assert.Equal(t, llm.RoleUser, msg.Role)
	assert.Equal(t, emptyContextFallback, msg.Content)
}

func TestDynamicSnippetsAroundSpans(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	note := "First sentence here. Second sentence here. Patient reports new chest pain. Fourth sentence here. Fifth sentence here."
	msg := b.Dynamic(DynamicContext{
		Note:         note,
		ChangedSpans: []string{"new chest pain"},
	})

	assert.Contains(t, msg.Content, "Second sentence here.")
	assert.Contains(t, msg.Content, "Patient reports new chest pain.")
	assert.Contains(t, msg.Content, "Fourth sentence here.")
	assert.NotContains(t, msg.Content, "First sentence here.")
}

func TestDynamicSnippetFallback(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	var sentences []string
	for i := 0; i < 10; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence number %d.", i))
	}
	msg := b.Dynamic(DynamicContext{
		Note:         strings.Join(sentences, " "),
		ChangedSpans: []string{"text that appears nowhere"},
	})

	// No span matched: first five sentences only.
	assert.Contains(t, msg.Content, "Sentence number 0.")
	assert.Contains(t, msg.Content, "Sentence number 4.")
	assert.NotContains(t, msg.Content, "Sentence number 5.")
}

func TestDynamicStateSummary(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	msg := b.Dynamic(DynamicContext{
		NoteID:              "n1",
		EncounterID:         "e1",
		Note:                "Some note.",
		PreviousHash:        "abc123def456",
		AcceptedDisposition: map[string]any{"accepted": []any{"I10"}},
	})

	assert.Contains(t, msg.Content, "noteId=n1")
	assert.Contains(t, msg.Content, "encounterId=e1")
	assert.Contains(t, msg.Content, "previousHash=abc123def456")
	assert.Contains(t, msg.Content, "noteHash=")
	assert.Contains(t, msg.Content, "acceptedHash=")
	assert.NotContains(t, msg.Content, "sessionId=")
}

func TestDynamicAttachments(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	msg := b.Dynamic(DynamicContext{
		Attachments: map[string]string{"chart": "12345", "files": ""},
	})

	assert.Contains(t, msg.Content, "chart=present (5 chars)")
	assert.Contains(t, msg.Content, "audio=absent")
	assert.Contains(t, msg.Content, "files=absent")
}

func TestDynamicDisposition(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	accepted := []models.Suggestion{
		{Code: "I10", Description: "Essential hypertension", Rationale: "documented BP"},
	}
	var denied []models.Suggestion
	for i := 0; i < 6; i++ {
		denied = append(denied, models.Suggestion{Code: fmt.Sprintf("Z%02d", i)})
	}

	msg := b.Dynamic(DynamicContext{Accepted: accepted, Denied: denied})
	assert.Contains(t, msg.Content, "Accepted: I10 — Essential hypertension (documented BP)")
	assert.Contains(t, msg.Content, "Z03")
	// Capped at four denied items.
	assert.NotContains(t, msg.Content, "Z04")
}

func TestDynamicTranscriptTruncation(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, nil)

	msg := b.Dynamic(DynamicContext{Transcript: strings.Repeat("word ", 100)})
	require.Contains(t, msg.Content, "Transcript snippet: ")
	assert.Contains(t, msg.Content, "…")
	// 240 chars plus the ellipsis and label.
	assert.Less(t, len([]rune(msg.Content)), 280)
}

func TestDynamicGuidelines(t *testing.T) {
	b := newTestBuilder(passthroughScrubber{}, staticGuidelines{
		tips: []string{"tip a", "tip a", "tip b", "", "tip c", "tip d", "tip e", "tip f"},
	})

	msg := b.Dynamic(DynamicContext{PMH: []string{"CAD"}})
	assert.Contains(t, msg.Content, "Care guidelines to consider: tip a, tip b, tip c, tip d, tip e")
	assert.NotContains(t, msg.Content, "tip f")
}

func TestDynamicScrubsFreeText(t *testing.T) {
	b := newTestBuilder(markingScrubber{}, staticGuidelines{tips: []string{"screen yearly"}})

	msg := b.Dynamic(DynamicContext{
		Note:         "Visit note.",
		ChangedSpans: []string{"Visit"},
		Transcript:   "spoken words",
		UserRules:    []string{"prefer brevity"},
		PMH:          []string{"CABG 1998"},
		Accepted: []models.Suggestion{
			{Code: "I10", Description: "hypertension", Rationale: "per home readings"},
		},
	})

	assert.Contains(t, msg.Content, "§spoken words")
	assert.Contains(t, msg.Content, "§prefer brevity")
	assert.Contains(t, msg.Content, "§Visit note.")
	assert.Contains(t, msg.Content, "§CABG 1998")
	assert.Contains(t, msg.Content, "§hypertension")
	assert.Contains(t, msg.Content, "§per home readings")
	assert.Contains(t, msg.Content, "§screen yearly")
}

func TestDynamicRedactsIdentifiers(t *testing.T) {
	b := newTestBuilder(scrub.New(scrub.PolicyMinimum), nil)

	msg := b.Dynamic(DynamicContext{
		PMH: []string{"CABG 1998, SSN 123-45-6789 on chart"},
		Accepted: []models.Suggestion{
			{Code: "I10", Description: "hypertension", Rationale: "call 555-867-5309 to confirm"},
		},
	})

	assert.NotContains(t, msg.Content, "123-45-6789")
	assert.NotContains(t, msg.Content, "555-867-5309")
	assert.Contains(t, msg.Content, "CABG 1998")
	assert.Contains(t, msg.Content, "I10 — hypertension")
}
