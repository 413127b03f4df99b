// Package scrub redacts protected health information from free text before
// it can reach a prompt or a wire payload. Detected spans are replaced with
// stable tokens of the form [TAG:hex10] where hex10 is the first ten hex
// characters of the sha1 of the raw span, so equal values redact to equal
// tokens and redacted text stays diffable.
package scrub

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Policy selects the scrubbing mode.
type Policy string

// Supported policies. PolicyMinimum is the default and always scrubs;
// PolicyOff passes text through untouched (recorded as a skip, never a
// failure).
const (
	PolicyMinimum Policy = "minimum"
	PolicyOff     Policy = "off"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyMinimum || p == PolicyOff
}

// category pairs a PHI tag with its compiled detector. Categories are applied
// in declaration order; earlier categories take precedence over later ones.
type category struct {
	tag string
	re  *regexp.Regexp
}

// tokenRe matches spans already redacted by a previous pass. Protected
// segments are never re-scanned, which makes Scrub idempotent.
var tokenRe = regexp.MustCompile(`\[[A-Z]+:[0-9a-f]{10}\]`)

// Scrubber applies the PHI category patterns under a policy. Patterns are
// compiled once at construction; the scrubber is stateless afterwards and
// safe for concurrent use.
type Scrubber struct {
	policy     Policy
	categories []category
}

// New creates a Scrubber for the given policy. An unknown policy falls back
// to PolicyMinimum (fail-closed: when in doubt, scrub).
func New(policy Policy) *Scrubber {
	if !policy.Valid() {
		slog.Warn("Unknown scrub policy, falling back to minimum", "policy", policy)
		policy = PolicyMinimum
	}
	return &Scrubber{
		policy:     policy,
		categories: compiledCategories,
	}
}

// Policy returns the active policy.
func (s *Scrubber) Policy() Policy {
	return s.policy
}

// Scrub redacts all detected PHI spans in text. With PolicyOff the input is
// returned unchanged. Scrub is idempotent: tokens produced by an earlier pass
// are preserved verbatim.
func (s *Scrubber) Scrub(text string) string {
	if s.policy == PolicyOff || text == "" {
		return text
	}

	// Split around existing tokens so they are never re-tokenized.
	var b strings.Builder
	last := 0
	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		b.WriteString(s.scrubSegment(text[last:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(s.scrubSegment(text[last:]))
	return b.String()
}

// scrubSegment applies every category, in precedence order, to a token-free
// segment.
func (s *Scrubber) scrubSegment(segment string) string {
	if segment == "" {
		return segment
	}
	for _, c := range s.categories {
		segment = c.re.ReplaceAllStringFunc(segment, func(raw string) string {
			return token(c.tag, raw)
		})
	}
	return segment
}

// token builds the replacement token for a raw PHI span.
func token(tag, raw string) string {
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("[%s:%s]", tag, hex.EncodeToString(sum[:])[:10])
}
