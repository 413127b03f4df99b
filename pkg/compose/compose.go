// Package compose runs the staged note-composition workflow: analyze the
// raw note, restructure it, beautify the language (remote model with offline
// and deterministic fallbacks), and run final validation. Every observable
// transition is pushed to a reporter so progress can be streamed live.
package compose

import (
	"context"

	"github.com/clinscribe/clinscribe/pkg/llm"
	"github.com/clinscribe/clinscribe/pkg/models"
)

// Pipeline stages, in execution order.
const (
	StageAnalyzing           = "analyzing"
	StageEnhancingStructure  = "enhancing_structure"
	StageBeautifyingLanguage = "beautifying_language"
	StageFinalReview         = "final_review"
)

// stageOrder drives step initialization and progress floors.
var stageOrder = []struct {
	Stage string
	Floor float64
}{
	{StageAnalyzing, 0.15},
	{StageEnhancingStructure, 0.35},
	{StageBeautifyingLanguage, 0.85},
	{StageFinalReview, 1.00},
}

// Step and pipeline statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// Beautify modes recorded on the state. Degraded marks the deterministic
// re-casing fallback so telemetry can tell it apart from a real remote pass.
const (
	ModeOffline  = "offline"
	ModeRemote   = "remote"
	ModeDegraded = "degraded"
)

// CancelledMessage is the terminal message set when a job is cancelled.
const CancelledMessage = "Compose job cancelled"

// Job is one compose request.
type Job struct {
	ComposeID   string         `json:"composeId"`
	NoteID      string         `json:"noteId,omitempty"`
	EncounterID string         `json:"encounterId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Username    string         `json:"username,omitempty"`
	Note        string         `json:"note"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Codes       []models.Code  `json:"codes,omitempty"`
	Transcript  string         `json:"transcript,omitempty"`
	Lang        string         `json:"lang,omitempty"`
	Specialty   string         `json:"specialty,omitempty"`
	Payer       string         `json:"payer,omitempty"`
	PatientName string         `json:"patientName,omitempty"`
	VisitDate   string         `json:"visitDate,omitempty"`

	Offline        bool   `json:"offline,omitempty"`
	UseLocalModels bool   `json:"useLocalModels,omitempty"`
	BeautifyModel  string `json:"beautifyModel,omitempty"`

	// Validation context forwarded opaquely to the validator.
	Prevention    any `json:"prevention,omitempty"`
	Diagnoses     any `json:"diagnoses,omitempty"`
	Differentials any `json:"differentials,omitempty"`
	Compliance    any `json:"compliance,omitempty"`
}

// Step tracks one stage's status within a run.
type Step struct {
	ID       string  `json:"id"`
	Stage    string  `json:"stage"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// Analysis is the analyzing stage's output.
type Analysis struct {
	NormalizedNote       string         `json:"normalizedNote"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CodeCount            int            `json:"codeCount"`
	TranscriptHighlights []string       `json:"transcriptHighlights,omitempty"`
}

// Validation is the final-review stage's output. Detail carries any extra
// keys the validator returned, passed through opaquely.
type Validation struct {
	Issues      map[string]any `json:"issues,omitempty"`
	CanFinalize bool           `json:"canFinalize"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// State is the full pipeline snapshot handed to the reporter on every
// transition and returned from Run.
type State struct {
	ComposeID string  `json:"composeId"`
	Status    string  `json:"status"`
	Stage     string  `json:"stage,omitempty"`
	Progress  float64 `json:"progress"`
	Steps     []Step  `json:"steps"`
	Message   string  `json:"message,omitempty"`

	Analysis           *Analysis   `json:"analysis,omitempty"`
	StructuredNote     string      `json:"structuredNote,omitempty"`
	BeautifiedNote     string      `json:"beautifiedNote,omitempty"`
	CodeJustifications []string    `json:"codeJustifications,omitempty"`
	PatientSummary     string      `json:"patientSummary,omitempty"`
	Mode               string      `json:"mode,omitempty"`
	Validation         *Validation `json:"validation,omitempty"`
}

// Reporter receives a snapshot after every observable transition. Errors
// are logged and ignored; the pipeline never stops for its reporter.
type Reporter func(State) error

// ValidationInput is the request shape handed to the external validator.
type ValidationInput struct {
	Content       string        `json:"content"`
	Codes         []models.Code `json:"codes,omitempty"`
	Prevention    any           `json:"prevention,omitempty"`
	Diagnoses     any           `json:"diagnoses,omitempty"`
	Differentials any           `json:"differentials,omitempty"`
	Compliance    any           `json:"compliance,omitempty"`
}

// ValidationResult is the validator's reply. Extra holds unrecognized keys.
type ValidationResult struct {
	Issues      map[string]any
	CanFinalize bool
	Extra       map[string]any
}

// Validator is the external final-review collaborator.
type Validator interface {
	Validate(ctx context.Context, input ValidationInput) (ValidationResult, error)
}

// OfflineBeautifier is the local-model collaborator used when a job asks for
// offline processing.
type OfflineBeautifier interface {
	Beautify(ctx context.Context, note string) (string, error)
}

// BeautifyPrompter builds the message sequence for the remote beautify call.
type BeautifyPrompter interface {
	BeautifyMessages(note string) []llm.Message
}
