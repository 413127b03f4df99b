package prompt

import (
	"fmt"
	"strings"

	"github.com/clinscribe/clinscribe/pkg/gate"
	"github.com/clinscribe/clinscribe/pkg/llm"
	"github.com/clinscribe/clinscribe/pkg/models"
	"github.com/clinscribe/clinscribe/pkg/notetext"
)

// Limits applied while assembling the dynamic block.
const (
	maxSnippetSentences  = 8
	fallbackSentences    = 5
	maxDispositionItems  = 4
	maxTranscriptChars   = 240
	maxPMHItems          = 3
	maxGuidelineTips     = 5
	emptyContextFallback = "No recent changes supplied; use clinician instructions and defaults."
)

// DynamicContext carries everything the per-request user message is built
// from. All free-text fields are scrubbed before use.
type DynamicContext struct {
	NoteID      string
	EncounterID string
	SessionID   string

	Note             string
	PreviousHash     string
	TranscriptCursor string
	Transcript       string

	// ChangedSpans holds the new-text pieces of the latest admitted diff.
	ChangedSpans []string

	AcceptedDisposition map[string]any
	Accepted            []models.Suggestion
	Denied              []models.Suggestion

	Demographics models.Demographics

	// Attachments maps chart/audio/files to their raw content; a key with
	// empty content counts as absent.
	Attachments map[string]string

	UserRules []string
	PMH       []string
}

// attachmentKeys is the fixed emission order for the attachments section.
var attachmentKeys = []string{"chart", "audio", "files"}

// Dynamic assembles the single user-role message for one request. Sections
// with no underlying data are omitted; if every section is empty, a fixed
// fallback instruction is returned.
func (b *Builder) Dynamic(dc DynamicContext) llm.Message {
	note := b.scrubber.Scrub(dc.Note)

	var sections []string
	if s := b.snippetSection(note, dc.ChangedSpans); s != "" {
		sections = append(sections, s)
	}
	if s := b.stateSection(dc, note); s != "" {
		sections = append(sections, s)
	}
	if s := demographicsSection(dc.Demographics); s != "" {
		sections = append(sections, s)
	}
	if s := b.attachmentSection(dc.Attachments); s != "" {
		sections = append(sections, s)
	}
	if s := b.rulesSection(dc.UserRules); s != "" {
		sections = append(sections, s)
	}
	if s := b.dispositionSection(dc.Accepted, dc.Denied); s != "" {
		sections = append(sections, s)
	}
	if s := b.transcriptSection(dc.Transcript); s != "" {
		sections = append(sections, s)
	}
	if s := b.pmhSection(dc.PMH); s != "" {
		sections = append(sections, s)
	}
	if s := b.guidelineSection(); s != "" {
		sections = append(sections, s)
	}

	content := strings.Join(sections, "\n\n")
	if content == "" {
		content = emptyContextFallback
	}
	return llm.Message{Role: llm.RoleUser, Content: content}
}

// snippetSection extracts the sentences around each changed span, with one
// neighbor on each side, deduplicated in note order.
func (b *Builder) snippetSection(note string, spans []string) string {
	sentences := notetext.Sentences(note)
	if len(sentences) == 0 {
		return ""
	}

	var picked []int
	seen := make(map[int]bool)
	add := func(i int) {
		if i >= 0 && i < len(sentences) && !seen[i] {
			seen[i] = true
			picked = append(picked, i)
		}
	}

	for _, span := range spans {
		span = strings.ToLower(strings.TrimSpace(b.scrubber.Scrub(span)))
		if span == "" {
			continue
		}
		for i, sentence := range sentences {
			if strings.Contains(strings.ToLower(sentence), span) {
				add(i - 1)
				add(i)
				add(i + 1)
				break
			}
		}
	}

	if len(picked) == 0 {
		if len(spans) == 0 {
			return ""
		}
		// No span matched a sentence; fall back to the opening of the note.
		for i := 0; i < fallbackSentences && i < len(sentences); i++ {
			picked = append(picked, i)
		}
	}
	if len(picked) > maxSnippetSentences {
		picked = picked[:maxSnippetSentences]
	}

	var sb strings.Builder
	sb.WriteString("Note excerpts around recent changes:\n")
	for _, i := range picked {
		sb.WriteString("- ")
		sb.WriteString(sentences[i])
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stateSection emits the comma-joined key=value identity pairs.
func (b *Builder) stateSection(dc DynamicContext, scrubbedNote string) string {
	var pairs []string
	appendPair := func(key, value string) {
		if value != "" {
			pairs = append(pairs, key+"="+value)
		}
	}

	appendPair("noteId", dc.NoteID)
	appendPair("encounterId", dc.EncounterID)
	appendPair("sessionId", dc.SessionID)
	if scrubbedNote != "" {
		appendPair("noteHash", notetext.ShortDigest(scrubbedNote))
	}
	appendPair("previousHash", dc.PreviousHash)
	appendPair("cursor", b.scrubber.Scrub(dc.TranscriptCursor))
	if dc.AcceptedDisposition != nil {
		appendPair("acceptedHash", gate.DispositionHash(dc.AcceptedDisposition)[:12])
	}

	if len(pairs) == 0 {
		return ""
	}
	return "Session state: " + strings.Join(pairs, ", ")
}

func demographicsSection(d models.Demographics) string {
	var pairs []string
	if d.Age > 0 {
		pairs = append(pairs, fmt.Sprintf("age=%d", d.Age))
	}
	if d.Sex != "" {
		pairs = append(pairs, "sex="+d.Sex)
	}
	if d.Region != "" {
		pairs = append(pairs, "region="+d.Region)
	}
	if len(pairs) == 0 {
		return ""
	}
	return "Patient context: " + strings.Join(pairs, ", ")
}

func (b *Builder) attachmentSection(attachments map[string]string) string {
	if len(attachments) == 0 {
		return ""
	}
	var parts []string
	for _, key := range attachmentKeys {
		content := b.scrubber.Scrub(attachments[key])
		if content == "" {
			parts = append(parts, key+"=absent")
		} else {
			parts = append(parts, fmt.Sprintf("%s=present (%d chars)", key, len(content)))
		}
	}
	return "Attachments: " + strings.Join(parts, ", ")
}

func (b *Builder) rulesSection(rules []string) string {
	var sb strings.Builder
	for _, rule := range rules {
		rule = strings.TrimSpace(b.scrubber.Scrub(rule))
		if rule == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Clinician rules:\n" + strings.TrimRight(sb.String(), "\n")
}

// dispositionSection summarizes accepted and denied code suggestions, up to
// four items per side.
func (b *Builder) dispositionSection(accepted, denied []models.Suggestion) string {
	if len(accepted) == 0 && len(denied) == 0 {
		return ""
	}
	return fmt.Sprintf("Accepted: %s; Denied: %s",
		b.formatSuggestions(accepted), b.formatSuggestions(denied))
}

func (b *Builder) formatSuggestions(items []models.Suggestion) string {
	if len(items) == 0 {
		return "none"
	}
	if len(items) > maxDispositionItems {
		items = items[:maxDispositionItems]
	}
	parts := make([]string, 0, len(items))
	for _, s := range items {
		part := s.Code
		if desc := b.scrubber.Scrub(s.Description); desc != "" {
			part += " — " + desc
		}
		if rationale := b.scrubber.Scrub(s.Rationale); rationale != "" {
			part += " (" + rationale + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func (b *Builder) transcriptSection(transcript string) string {
	scrubbed := strings.Join(strings.Fields(b.scrubber.Scrub(transcript)), " ")
	if scrubbed == "" {
		return ""
	}
	if runes := []rune(scrubbed); len(runes) > maxTranscriptChars {
		scrubbed = string(runes[:maxTranscriptChars]) + "…"
	}
	return "Transcript snippet: " + scrubbed
}

func (b *Builder) pmhSection(pmh []string) string {
	var sb strings.Builder
	count := 0
	for _, item := range pmh {
		item = strings.TrimSpace(b.scrubber.Scrub(item))
		if item == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
		count++
		if count == maxPMHItems {
			break
		}
	}
	if count == 0 {
		return ""
	}
	return "PMH highlights:\n" + strings.TrimRight(sb.String(), "\n")
}

func (b *Builder) guidelineSection() string {
	if b.guidelines == nil {
		return ""
	}
	var unique []string
	seen := make(map[string]bool)
	for _, tip := range b.guidelines.Tips() {
		tip = strings.TrimSpace(b.scrubber.Scrub(tip))
		if tip == "" || seen[tip] {
			continue
		}
		seen[tip] = true
		unique = append(unique, tip)
		if len(unique) == maxGuidelineTips {
			break
		}
	}
	if len(unique) == 0 {
		return ""
	}
	return "Care guidelines to consider: " + strings.Join(unique, ", ")
}
