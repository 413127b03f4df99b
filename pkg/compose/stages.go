package compose

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/clinscribe/clinscribe/pkg/models"
)

const maxTranscriptHighlights = 3
const maxSummaryKeyPoints = 6

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	// A heading is a line of letters and spaces ending with a colon.
	headingRe = regexp.MustCompile(`^[A-Za-z][A-Za-z ]*:$`)
	bulletRe  = regexp.MustCompile(`^(\s*(?:[-*•]|\d+[.)])\s*)(.*)$`)
)

// normalizeMetadata drops nil values and returns a fresh map.
func normalizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if v == nil {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sanitizeNote strips HTML tags and normalizes line endings.
func sanitizeNote(note string) string {
	note = htmlTagRe.ReplaceAllString(note, " ")
	note = strings.ReplaceAll(note, "\r\n", "\n")
	lines := strings.Split(note, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// defaultNoteTemplate substitutes a starter chest-pain note when the input
// is empty after sanitization.
func defaultNoteTemplate(patientName, visitDate string) string {
	if patientName == "" {
		patientName = "the patient"
	}
	if visitDate == "" {
		visitDate = time.Now().Format("2006-01-02")
	}
	return fmt.Sprintf(`Chief Complaint:
Chest pain.

History of Present Illness:
%s presents on %s with chest pain. Onset, duration, character, radiation, and associated symptoms to be documented.

Assessment and Plan:
Evaluation for cardiac and non-cardiac causes of chest pain. Pending clinician input.`, patientName, visitDate)
}

// transcriptHighlights pulls up to three bulleted highlights from the visit
// transcript, preferring the longest utterances.
func transcriptHighlights(transcript string) []string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil
	}
	var candidates []string
	for _, line := range strings.FieldsFunc(transcript, func(r rune) bool { return r == '\n' || r == '.' }) {
		line = strings.TrimSpace(line)
		if len(line) >= 20 {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		candidates = []string{transcript}
	}
	if len(candidates) > maxTranscriptHighlights {
		candidates = candidates[:maxTranscriptHighlights]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, "• "+c)
	}
	return out
}

// enhanceStructure upper-cases section headings, separates them with blank
// lines, and capitalizes sentences while leaving bullet markers intact.
func enhanceStructure(note string) string {
	var out []string
	for _, line := range strings.Split(note, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if headingRe.MatchString(trimmed) {
			if len(out) > 0 {
				out = append(out, "")
			}
			out = append(out, strings.ToUpper(trimmed))
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			out = append(out, m[1]+capitalizeSentences(m[2]))
			continue
		}
		out = append(out, capitalizeSentences(trimmed))
	}
	return strings.Join(out, "\n")
}

// capitalizeSentences upper-cases the first letter of each sentence in line.
func capitalizeSentences(line string) string {
	runes := []rune(line)
	atStart := true
	for i, r := range runes {
		switch {
		case atStart && isLetter(r):
			runes[i] = toUpper(r)
			atStart = false
		case r == '.' || r == '!' || r == '?':
			atStart = true
		case atStart && r != ' ':
			atStart = false
		}
	}
	return string(runes)
}

// recaseSentences is the deterministic beautify fallback: split on sentence
// breaks, capitalize, rejoin.
func recaseSentences(note string) string {
	var out []string
	for _, line := range strings.Split(note, "\n") {
		parts := strings.Split(line, ". ")
		for i, part := range parts {
			parts[i] = upperFirst(part)
		}
		out = append(out, strings.Join(parts, ". "))
	}
	return strings.Join(out, "\n")
}

func upperFirst(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if isLetter(r) {
			runes[i] = toUpper(r)
			return string(runes)
		}
		if r != ' ' {
			break
		}
	}
	return s
}

func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

// codeJustifications emits one bullet per unique selected code. The rationale
// uses the first non-empty evidence field, consulted in a fixed order.
func codeJustifications(codes []models.Code) []string {
	var out []string
	seen := make(map[string]bool)
	for _, code := range codes {
		if !code.Selected || code.Code == "" || seen[code.Code] {
			continue
		}
		seen[code.Code] = true
		rationale := firstNonEmpty(
			code.DocSupport,
			code.Details,
			code.Description,
			code.AIReasoning,
			code.Evidence,
			code.Gaps,
		)
		if rationale == "" {
			rationale = "selected by clinician"
		}
		out = append(out, fmt.Sprintf("• %s: %s", code.Code, rationale))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// patientSummary builds the patient-facing visit summary: header, key
// points, transcript highlights, billing points, and next steps.
func patientSummary(job Job, beautifiedNote string, highlights []string) string {
	var sb strings.Builder

	date := job.VisitDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	sb.WriteString(fmt.Sprintf("Visit Summary — %s\n\n", date))

	points := 0
	for _, para := range strings.Split(beautifiedNote, "\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasSuffix(para, ":") {
			continue
		}
		sb.WriteString(para)
		sb.WriteString("\n")
		points++
		if points == maxSummaryKeyPoints {
			break
		}
	}

	if len(highlights) > 0 {
		sb.WriteString("\nFrom your visit:\n")
		for _, h := range highlights {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}

	if billed := selectedCodeLines(job.Codes); len(billed) > 0 {
		sb.WriteString("\nBilling:\n")
		for _, line := range billed {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nNext steps: follow the plan discussed with your clinician and contact the clinic with any new or worsening symptoms.")
	return sb.String()
}

func selectedCodeLines(codes []models.Code) []string {
	var out []string
	for _, code := range codes {
		if !code.Selected || code.Code == "" {
			continue
		}
		line := "• " + code.Code
		if code.Description != "" {
			line += " — " + code.Description
		}
		out = append(out, line)
	}
	return out
}
