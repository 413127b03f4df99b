package compose

import (
	"context"
	"strings"
)

// RuleValidator is the built-in final-review validator: deterministic
// documentation checks that run when no external validation service is
// configured. It never blocks finalization on style, only on missing
// documentation substance.
type RuleValidator struct{}

// Validate checks the beautified note against the selected codes.
func (RuleValidator) Validate(_ context.Context, input ValidationInput) (ValidationResult, error) {
	issues := make(map[string]any)

	content := strings.TrimSpace(input.Content)
	if content == "" {
		issues["content"] = "note is empty after composition"
	} else if len(content) < 80 {
		issues["content"] = "note is too short to support billing review"
	}

	var unsupported []string
	lower := strings.ToLower(content)
	for _, code := range input.Codes {
		if !code.Selected {
			continue
		}
		if code.DocSupport == "" && code.Details == "" && code.Evidence == "" &&
			code.Description != "" && !strings.Contains(lower, strings.ToLower(code.Description)) {
			unsupported = append(unsupported, code.Code)
		}
	}
	if len(unsupported) > 0 {
		issues["codes"] = map[string]any{
			"unsupported": unsupported,
			"message":     "selected codes lack documentation support",
		}
	}

	return ValidationResult{
		Issues:      issues,
		CanFinalize: len(issues) == 0,
	}, nil
}
