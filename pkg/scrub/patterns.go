package scrub

import "regexp"

// PHI category detectors in precedence order. The more specific categories
// come first so a span is tagged by the most meaningful category that matches
// it: DOB before DATE, SSN before PHONE, and EMAIL before URL so a URL scan
// cannot partially consume an address.
var compiledCategories = []category{
	{"DOB", regexp.MustCompile(`(?i)\b(?:dob|date of birth)\s*[:\-]?\s*\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)},
	{"DATE", regexp.MustCompile(`(?i)\b(?:\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:,?\s+\d{4})?)\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]?\d{4}\b`)},
	{"ADDRESS", regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[a-z0-9'.]+\s){1,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|circle|cir|way|place|pl)\b\.?(?:,?\s*(?:apt|suite|unit|#)\s*\w+)?`)},
	{"EMAIL", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"URL", regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)},
	{"IP", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"MRN", regexp.MustCompile(`(?i)\bmrn\s*[:#]?\s*\d{5,12}\b`)},
	{"NAME", regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?|\b(?i:patient name|name)\s*:\s*[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)},
}
