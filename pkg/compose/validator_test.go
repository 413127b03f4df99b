package compose

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/clinscribe/pkg/models"
)

func TestRuleValidatorPasses(t *testing.T) {
	v := RuleValidator{}
	result, err := v.Validate(context.Background(), ValidationInput{
		Content: strings.Repeat("Patient is recovering well with essential hypertension controlled. ", 3),
		Codes: []models.Code{
			{Code: "I10", Selected: true, Description: "essential hypertension"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.CanFinalize)
	assert.Empty(t, result.Issues)
}

func TestRuleValidatorFlagsEmptyNote(t *testing.T) {
	v := RuleValidator{}
	result, err := v.Validate(context.Background(), ValidationInput{Content: "  "})
	require.NoError(t, err)
	assert.False(t, result.CanFinalize)
	assert.Contains(t, result.Issues, "content")
}

func TestRuleValidatorFlagsUnsupportedCodes(t *testing.T) {
	v := RuleValidator{}
	result, err := v.Validate(context.Background(), ValidationInput{
		Content: strings.Repeat("Extended visit documentation covering current symptoms and plan. ", 3),
		Codes: []models.Code{
			{Code: "E11.9", Selected: true, Description: "type 2 diabetes"},
			{Code: "I10", Selected: true, DocSupport: "BP readings documented"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.CanFinalize)
	codes := result.Issues["codes"].(map[string]any)
	assert.Equal(t, []string{"E11.9"}, codes["unsupported"])
}
