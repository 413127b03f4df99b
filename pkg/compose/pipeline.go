package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinscribe/clinscribe/pkg/llm"
)

// Pipeline executes compose jobs. All collaborators are injected; a nil
// OfflineBeautifier disables the offline path, a nil LLM client forces the
// deterministic beautify fallback.
type Pipeline struct {
	llmClient llm.Client
	offline   OfflineBeautifier
	prompter  BeautifyPrompter
	validator Validator

	beautifyModel string
	temperature   float64
}

// NewPipeline creates a Pipeline. validator must not be nil.
func NewPipeline(llmClient llm.Client, offline OfflineBeautifier, prompter BeautifyPrompter, validator Validator, beautifyModel string, temperature float64) *Pipeline {
	if validator == nil {
		panic("compose.NewPipeline: validator must not be nil")
	}
	return &Pipeline{
		llmClient:     llmClient,
		offline:       offline,
		prompter:      prompter,
		validator:     validator,
		beautifyModel: beautifyModel,
		temperature:   temperature,
	}
}

// Run executes the four stages for job, reporting every transition. It
// returns the terminal state; the only error-shaped outcome is a state with
// Status == StatusFailed carrying the error message. isCancelled is polled
// at each stage boundary and may be nil.
func (p *Pipeline) Run(ctx context.Context, job Job, report Reporter, isCancelled func() bool) State {
	state := newState(job.ComposeID)
	emit := func() {
		if report == nil {
			return
		}
		if err := report(snapshot(state)); err != nil {
			slog.Warn("Compose reporter failed, continuing",
				"compose_id", job.ComposeID, "error", err)
		}
	}
	cancelled := func() bool {
		if isCancelled != nil && isCancelled() {
			return true
		}
		return ctx.Err() != nil
	}

	for i, def := range stageOrder {
		if cancelled() {
			state.Status = StatusCancelled
			state.Message = CancelledMessage
			state.Steps[i].Status = StatusCancelled
			emit()
			return snapshot(state)
		}

		state.Stage = def.Stage
		state.Steps[i].Status = StatusInProgress
		emit()

		var err error
		switch def.Stage {
		case StageAnalyzing:
			err = p.runAnalyzing(&state, job)
		case StageEnhancingStructure:
			err = p.runEnhancingStructure(&state)
		case StageBeautifyingLanguage:
			err = p.runBeautifyingLanguage(ctx, &state, job)
		case StageFinalReview:
			err = p.runFinalReview(ctx, &state, job)
		}
		if err != nil {
			state.Status = StatusFailed
			state.Message = err.Error()
			state.Steps[i].Status = StatusFailed
			emit()
			return snapshot(state)
		}

		state.Steps[i].Progress = def.Floor
		if def.Floor > state.Progress {
			state.Progress = def.Floor
		}
		if def.Stage == StageFinalReview && state.Status == StatusBlocked {
			state.Steps[i].Status = StatusBlocked
		} else {
			state.Steps[i].Status = StatusCompleted
		}
		// Final review sets the terminal status and is emitted after the loop.
		if def.Stage != StageFinalReview {
			emit()
		}
	}

	if state.Status == StatusInProgress {
		state.Status = StatusCompleted
	}
	emit()
	return snapshot(state)
}

func newState(composeID string) State {
	steps := make([]Step, 0, len(stageOrder))
	for i, def := range stageOrder {
		steps = append(steps, Step{
			ID:       fmt.Sprintf("step-%d", i+1),
			Stage:    def.Stage,
			Status:   StatusPending,
			Progress: 0,
		})
	}
	return State{
		ComposeID: composeID,
		Status:    StatusInProgress,
		Steps:     steps,
	}
}

// snapshot deep-copies state so reporters and callers never share the
// pipeline's mutable slices.
func snapshot(s State) State {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	copy(out.Steps, s.Steps)
	if s.Analysis != nil {
		a := *s.Analysis
		out.Analysis = &a
	}
	if s.Validation != nil {
		v := *s.Validation
		out.Validation = &v
	}
	if s.CodeJustifications != nil {
		out.CodeJustifications = append([]string(nil), s.CodeJustifications...)
	}
	return out
}

func (p *Pipeline) runAnalyzing(state *State, job Job) error {
	metadata := normalizeMetadata(job.Metadata)
	note := sanitizeNote(job.Note)
	if strings.TrimSpace(note) == "" {
		note = defaultNoteTemplate(job.PatientName, job.VisitDate)
	}
	state.Analysis = &Analysis{
		NormalizedNote:       note,
		Metadata:             metadata,
		CodeCount:            len(job.Codes),
		TranscriptHighlights: transcriptHighlights(job.Transcript),
	}
	return nil
}

func (p *Pipeline) runEnhancingStructure(state *State) error {
	structured := enhanceStructure(state.Analysis.NormalizedNote)
	if strings.TrimSpace(structured) == "" {
		structured = state.Analysis.NormalizedNote
	}
	state.StructuredNote = structured
	return nil
}

func (p *Pipeline) runBeautifyingLanguage(ctx context.Context, state *State, job Job) error {
	note := state.StructuredNote

	beautified, mode := p.beautify(ctx, job, note)
	state.BeautifiedNote = beautified
	state.Mode = mode
	state.CodeJustifications = codeJustifications(job.Codes)
	state.PatientSummary = patientSummary(job, beautified, state.Analysis.TranscriptHighlights)
	return nil
}

// beautify tries offline first when requested, then the remote model, then a
// deterministic re-casing. The degraded mode marks the last resort so it is
// never mistaken for real model output.
func (p *Pipeline) beautify(ctx context.Context, job Job, note string) (string, string) {
	if job.Offline && p.offline != nil {
		out, err := p.offline.Beautify(ctx, note)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), ModeOffline
		}
		if err != nil {
			slog.Warn("Offline beautify failed, downgrading to remote",
				"compose_id", job.ComposeID, "error", err)
		}
	}

	if p.llmClient != nil {
		model := job.BeautifyModel
		if model == "" {
			model = p.beautifyModel
		}
		messages := p.beautifyMessages(note)
		out, err := p.llmClient.Complete(ctx, messages, model, p.temperature)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), ModeRemote
		}
		if err != nil {
			slog.Warn("Remote beautify failed, using deterministic fallback",
				"compose_id", job.ComposeID, "model", model, "error", err)
		}
	}

	return recaseSentences(note), ModeDegraded
}

func (p *Pipeline) beautifyMessages(note string) []llm.Message {
	if p.prompter != nil {
		return p.prompter.BeautifyMessages(note)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "Rewrite the clinical note with polished, professional language. Preserve all facts, measurements, and structure. Return only the rewritten note."},
		{Role: llm.RoleUser, Content: note},
	}
}

func (p *Pipeline) runFinalReview(ctx context.Context, state *State, job Job) error {
	result, err := p.validator.Validate(ctx, ValidationInput{
		Content:       state.BeautifiedNote,
		Codes:         job.Codes,
		Prevention:    job.Prevention,
		Diagnoses:     job.Diagnoses,
		Differentials: job.Differentials,
		Compliance:    job.Compliance,
	})
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	state.Validation = &Validation{
		Issues:      result.Issues,
		CanFinalize: result.CanFinalize,
		Detail:      result.Extra,
	}
	if result.CanFinalize {
		state.Status = StatusCompleted
	} else {
		state.Status = StatusBlocked
		state.Message = "Validation identified blocking issues."
	}
	return nil
}
