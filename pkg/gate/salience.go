package gate

import "regexp"

// Clinical salience patterns. Spans arrive normalized (lowercase, collapsed
// whitespace), so the patterns are written against lowercase text.
var saliencePatterns = []*regexp.Regexp{
	// Vitals with numbers: "bp 170/110", "hr: 112", "spo2 91".
	regexp.MustCompile(`\b(?:bp|hr|rr|spo2|o2 ?sat|temp)\s*:?\s*\d+(?:\.\d+)?(?:\s*/\s*\d+)?`),
	// Labs with a value and optional unit: "na 128", "hba1c 9.2%", "cr 2.1 mg/dl".
	regexp.MustCompile(`\b(?:na|k|cr|bun|hba1c|hgb|wbc|plt|troponin|inr)\s*:?\s*\d+(?:\.\d+)?\s*(?:%|mg/dl|meq/l|mmol/l|g/dl|k/ul|ng/ml)?`),
	// Medication dose plus frequency: "metoprolol 25 mg bid", "10 units qhs".
	regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|units?)\b[^\n]*?\b(?:daily|nightly|weekly|bid|tid|qid|qhs|qam|prn|q\d+h)\b`),
	// Procedures and imaging.
	regexp.MustCompile(`\b(?:ekg|ecg|cxr|mri|ct|colonoscopy|endoscopy|echocardiogram|stress test)\b`),
	// Diagnostic phrases.
	regexp.MustCompile(`\b(?:pneumonia|nstemi|stemi|sepsis|pulmonary embolism|rule[- ]out pe|dvt|chf|aki|gi bleed)\b`),
}

// positivePhrases are symptom findings whose first appearance is clinically
// significant even in a small edit.
var positivePhrases = []string{
	"chest pain",
	"shortness of breath",
	"fever",
	"syncope",
	"hemoptysis",
	"melena",
	"weight loss",
	"altered mental status",
}

var negationRe = regexp.MustCompile(`\b(?:denies|no|without|negative for)\b`)
var deniesRe = regexp.MustCompile(`\bdenies\b`)

// hasSalience reports whether the changed spans cross the clinical-importance
// bar, bypassing the size and distance thresholds.
func hasSalience(oldSpan, newSpan string) bool {
	for _, re := range saliencePatterns {
		if re.MatchString(oldSpan) || re.MatchString(newSpan) {
			return true
		}
	}

	// Negation dropped: "denies" in the old span but not the new one.
	if deniesRe.MatchString(oldSpan) && !deniesRe.MatchString(newSpan) {
		return true
	}

	// A positive finding appears without any negation in either span.
	if !negationRe.MatchString(oldSpan) && !negationRe.MatchString(newSpan) {
		for _, phrase := range positivePhrases {
			if containsFold(newSpan, phrase) {
				return true
			}
		}
	}
	return false
}
