// Package prompt assembles the two-part model conversation: a cacheable
// stable block (rubric, output schema, policy) keyed by model and schema
// version, and a per-request dynamic block built from the current encounter
// context with all free text passed through the PHI scrubber.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/clinscribe/clinscribe/pkg/llm"
)

// Cache states returned by Stable.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

const rubric = `You are a clinical documentation assistant. Improve the note's structure, completeness, and billing accuracy without inventing findings. Preserve the clinician's meaning exactly. Never add diagnoses, medications, or results that are not supported by the supplied context.`

const policyTemplate = `Documentation policy %s applies: flag unsupported code selections, surface missing elements required for the chosen billing level, and phrase all suggestions as recommendations for clinician review.`

// outputSchema describes the JSON reply shape. Marshaled with sorted keys
// and stable indentation so the serialized form is byte-stable across
// processes (encoding/json sorts map keys).
var outputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"suggestions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"rationale":   map[string]any{"type": "string"},
				},
				"required": []any{"code", "rationale"},
			},
		},
		"noteEdits": map[string]any{
			"type": "array",
			"items": map[string]any{"type": "string"},
		},
		"complianceFlags": map[string]any{
			"type": "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []any{"suggestions"},
}

// Builder assembles prompt blocks. Stateless apart from the stable-block
// cache; safe for concurrent use.
type Builder struct {
	schemaVersion string
	policyVersion string
	scrubber      Scrubber
	guidelines    GuidelineSource

	cache *stableCache
	group singleflight.Group
}

// Scrubber removes PHI from free text before it enters any prompt block.
type Scrubber interface {
	Scrub(text string) string
}

// GuidelineSource supplies care-guideline tips for the dynamic block.
// Implementations may return nil when no guidance applies.
type GuidelineSource interface {
	Tips() []string
}

// NewBuilder creates a Builder. guidelines may be nil.
func NewBuilder(schemaVersion, policyVersion string, cacheSize int, scrubber Scrubber, guidelines GuidelineSource) *Builder {
	return &Builder{
		schemaVersion: schemaVersion,
		policyVersion: policyVersion,
		scrubber:      scrubber,
		guidelines:    guidelines,
		cache:         newStableCache(cacheSize),
	}
}

// stableEntry is the cached value: the built messages plus a precomputed
// token estimate.
type stableEntry struct {
	messages      []llm.Message
	tokenEstimate int
}

// Stable returns the stable block for modelID: rubric, schema, and policy
// system messages. The returned slice is a defensive copy; mutating it does
// not affect the cache.
func (b *Builder) Stable(modelID string) (messages []llm.Message, cacheState string, tokenEstimate int) {
	key := strings.ToLower(strings.TrimSpace(modelID)) + "|" + b.schemaVersion

	if entry, ok := b.cache.get(key); ok {
		return copyMessages(entry.messages), CacheHit, entry.tokenEstimate
	}

	// Dedupe concurrent builds of the same key; losers reuse the winner's
	// entry rather than building and overwriting.
	v, _, _ := b.group.Do(key, func() (any, error) {
		entry := b.buildStable()
		b.cache.put(key, entry)
		return entry, nil
	})
	entry := v.(stableEntry)
	return copyMessages(entry.messages), CacheMiss, entry.tokenEstimate
}

func (b *Builder) buildStable() stableEntry {
	schemaJSON, err := json.MarshalIndent(outputSchema, "", "  ")
	if err != nil {
		// The schema is a static literal; marshal cannot fail in practice.
		schemaJSON = []byte("{}")
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: rubric},
		{Role: llm.RoleSystem, Content: fmt.Sprintf("Respond with JSON matching schema version %s:\n%s", b.schemaVersion, schemaJSON)},
		{Role: llm.RoleSystem, Content: fmt.Sprintf(policyTemplate, b.policyVersion)},
	}
	return stableEntry{
		messages:      messages,
		tokenEstimate: llm.EstimateTokens(messages),
	}
}

func copyMessages(in []llm.Message) []llm.Message {
	out := make([]llm.Message, len(in))
	copy(out, in)
	return out
}
