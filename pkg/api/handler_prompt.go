package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/llm"
	"github.com/clinscribe/clinscribe/pkg/models"
	"github.com/clinscribe/clinscribe/pkg/prompt"
)

// PromptBuildRequest is the body for POST /api/v1/prompt/build.
type PromptBuildRequest struct {
	ModelID string `json:"modelId"`

	NoteID      string `json:"noteId,omitempty"`
	EncounterID string `json:"encounterId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`

	Note             string   `json:"note,omitempty"`
	PreviousHash     string   `json:"previousHash,omitempty"`
	TranscriptCursor string   `json:"transcriptCursor,omitempty"`
	Transcript       string   `json:"transcript,omitempty"`
	ChangedSpans     []string `json:"changedSpans,omitempty"`

	AcceptedDisposition map[string]any      `json:"acceptedDisposition,omitempty"`
	Accepted            []models.Suggestion `json:"accepted,omitempty"`
	Denied              []models.Suggestion `json:"denied,omitempty"`

	Demographics models.Demographics `json:"demographics,omitempty"`
	Attachments  map[string]string   `json:"attachments,omitempty"`
	UserRules    []string            `json:"userRules,omitempty"`
	PMH          []string            `json:"pmh,omitempty"`
}

// PromptBuildResponse carries the assembled conversation plus cache
// telemetry for the stable block.
type PromptBuildResponse struct {
	Messages      []llm.Message `json:"messages"`
	CacheState    string        `json:"cacheState"`
	TokenEstimate int           `json:"tokenEstimate"`
}

// promptBuildHandler handles POST /api/v1/prompt/build: stable block from
// the LRU plus a freshly assembled dynamic block.
func (s *Server) promptBuildHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req PromptBuildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ModelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "modelId is required")
	}

	stable, cacheState, tokens := s.prompts.Stable(req.ModelID)
	dynamic := s.prompts.Dynamic(prompt.DynamicContext{
		NoteID:              req.NoteID,
		EncounterID:         req.EncounterID,
		SessionID:           req.SessionID,
		Note:                req.Note,
		PreviousHash:        req.PreviousHash,
		TranscriptCursor:    req.TranscriptCursor,
		Transcript:          req.Transcript,
		ChangedSpans:        req.ChangedSpans,
		AcceptedDisposition: req.AcceptedDisposition,
		Accepted:            req.Accepted,
		Denied:              req.Denied,
		Demographics:        req.Demographics,
		Attachments:         req.Attachments,
		UserRules:           req.UserRules,
		PMH:                 req.PMH,
	})

	return c.JSON(http.StatusOK, PromptBuildResponse{
		Messages:      append(stable, dynamic),
		CacheState:    cacheState,
		TokenEstimate: tokens,
	})
}
