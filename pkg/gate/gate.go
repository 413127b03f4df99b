// Package gate implements the meaningful-change admission controller. It
// decides, per clinician note, whether an incoming edit justifies an
// expensive model call, combining lexical deltas, trigram similarity,
// semantic embedding distance, and clinical salience.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"

	"github.com/clinscribe/clinscribe/pkg/config"
	"github.com/clinscribe/clinscribe/pkg/embedding"
	"github.com/clinscribe/clinscribe/pkg/notetext"
)

// Decision reason codes.
const (
	ReasonNoSentenceBoundary = "NO_SENTENCE_BOUNDARY"
	ReasonDuplicateState     = "DUPLICATE_STATE"
	ReasonBelowThreshold     = "BELOW_THRESHOLD"
	ReasonNotMeaningful      = "NOT_MEANINGFUL"
)

// Request is a single gate evaluation input.
type Request struct {
	NoteID              string         `json:"noteId,omitempty"`
	ClinicianID         string         `json:"clinicianId,omitempty"`
	Text                string         `json:"text"`
	Intent              string         `json:"intent,omitempty"`
	TranscriptCursor    string         `json:"transcriptCursor,omitempty"`
	AcceptedDisposition map[string]any `json:"acceptedDisposition,omitempty"`
}

// Detail carries the measured signals behind a decision, for logging and
// client display.
type Detail struct {
	DeltaChars              int     `json:"deltaChars"`
	TrigramDice             float64 `json:"trigramDice"`
	EmbeddingCosineDistance float64 `json:"embeddingCosineDistance"`
	NormalizedLen           int     `json:"normalizedLen"`
	AutoThreshold           int     `json:"autoThreshold"`
	ManualThreshold         int     `json:"manualThreshold"`
	Salient                 bool    `json:"salient"`
}

// Decision is the gate verdict. Denials carry a reason code and HTTP 409;
// admissions carry the resolved model id and HTTP 200.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	ReasonCode string `json:"reasonCode,omitempty"`
	ModelID    string `json:"modelId,omitempty"`
	Detail     Detail `json:"detail"`
	StatusCode int    `json:"statusCode"`
}

// noteState is the per-NoteKey slot. Lives for the process; mutated on every
// evaluation regardless of outcome.
type noteState struct {
	mu sync.Mutex

	lastNoteHash                string
	lastAdmittedNoteHash        string
	lastTranscriptCursor        string
	lastAcceptedDispositionHash string
	lastSentText                string
	coldStartCompleted          bool
}

// ClientFactory builds the embedding client on first use. Construction is
// deferred so the gate can start before credentials resolve.
type ClientFactory func() (embedding.Client, error)

// Gate owns the per-note state map and the admission decision.
type Gate struct {
	cfg    config.GateConfig
	models map[string]string

	mu      sync.Mutex
	states  map[string]*noteState
	factory ClientFactory
	probe   *embedding.Probe
}

// New creates a Gate. models maps request intents to model ids; factory
// provides the embedding backend lazily.
func New(cfg config.GateConfig, models map[string]string, factory ClientFactory) *Gate {
	return &Gate{
		cfg:     cfg,
		models:  models,
		states:  make(map[string]*noteState),
		factory: factory,
	}
}

// NoteKey derives the state-slot key: the note id when present, else the
// clinician id, else a shared unknown slot.
func NoteKey(req Request) string {
	if req.NoteID != "" {
		return "note:" + req.NoteID
	}
	if req.ClinicianID != "" {
		return "note:" + req.ClinicianID
	}
	return "note:unknown"
}

// Reset clears all per-note state and the cached embedding client.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states = make(map[string]*noteState)
	g.probe = nil
}

// Evaluate runs the admission decision for one edit. The returned error is
// non-nil only for embedding-protocol or backend failures; every decision
// path, admit or deny, updates the note state.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	key := NoteKey(req)
	st := g.stateFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	normalized := notetext.Normalize(req.Text)
	hash := notetext.Digest(normalized)
	length := len([]rune(normalized))

	intent := req.Intent
	if intent == "" {
		intent = config.IntentAuto
	}

	detail := Detail{
		NormalizedLen:   length,
		AutoThreshold:   threshold(g.cfg.AutoThresholdChars, g.cfg.AutoThresholdPct, length),
		ManualThreshold: threshold(g.cfg.ManualThresholdChars, g.cfg.ManualThresholdPct, length),
	}

	// 1. Sentence boundary: never interrupt mid-sentence typing.
	if !notetext.HasSentenceBoundary(req.Text) {
		return g.deny(st, req, normalized, hash, ReasonNoSentenceBoundary, detail), nil
	}

	// 2. Duplicate state: the admitted snapshot is unchanged.
	if hash == st.lastAdmittedNoteHash {
		return g.deny(st, req, normalized, hash, ReasonDuplicateState, detail), nil
	}

	// 3. Signals.
	oldSpan, newSpan, _ := notetext.ChangedSpans(st.lastSentText, normalized)
	detail.DeltaChars = maxInt(len([]rune(oldSpan)), len([]rune(newSpan)))
	detail.TrigramDice = notetext.TrigramDice(oldSpan, newSpan)

	probe, err := g.probeLocked()
	if err != nil {
		return Decision{}, fmt.Errorf("embedding client unavailable: %w", err)
	}
	detail.EmbeddingCosineDistance, err = probe.Distance(ctx, oldSpan, newSpan)
	if err != nil {
		return Decision{}, err
	}
	detail.Salient = hasSalience(oldSpan, newSpan)

	// 4. Cold start: require a minimum of note substance before the first admit.
	if !st.coldStartCompleted {
		if length < g.cfg.ColdStartChars {
			return g.deny(st, req, normalized, hash, ReasonBelowThreshold, detail), nil
		}
		st.coldStartCompleted = true
	}

	// 5. Non-salient edits must clear both the semantic and size bars.
	if !detail.Salient {
		lexicalTrigger := detail.DeltaChars < 40 || detail.TrigramDice > 0.90
		distanceMin := g.cfg.SemanticDistanceAutoMin
		if intent == config.IntentManual {
			distanceMin = g.cfg.SemanticDistanceManualMin
		}
		if detail.EmbeddingCosineDistance < distanceMin && (lexicalTrigger || detail.DeltaChars < length) {
			return g.deny(st, req, normalized, hash, ReasonNotMeaningful, detail), nil
		}

		sizeBar := detail.AutoThreshold
		if intent == config.IntentManual {
			sizeBar = detail.ManualThreshold
		}
		if detail.DeltaChars < sizeBar {
			return g.deny(st, req, normalized, hash, ReasonBelowThreshold, detail), nil
		}
	}

	// 6. Admit.
	st.lastAdmittedNoteHash = hash
	st.update(req, normalized, hash)

	modelID, ok := g.models[intent]
	if !ok {
		modelID = g.models[config.IntentAuto]
	}
	slog.Debug("Gate admitted edit",
		"note_key", key, "intent", intent, "model_id", modelID,
		"delta_chars", detail.DeltaChars, "salient", detail.Salient)

	return Decision{
		Allowed:    true,
		ModelID:    modelID,
		Detail:     detail,
		StatusCode: http.StatusOK,
	}, nil
}

// deny updates state and builds the denial decision.
func (g *Gate) deny(st *noteState, req Request, normalized, hash, reason string, detail Detail) Decision {
	st.update(req, normalized, hash)
	return Decision{
		Allowed:    false,
		ReasonCode: reason,
		Detail:     detail,
		StatusCode: http.StatusConflict,
	}
}

// update applies the post-decision state mutation shared by all exit paths.
func (s *noteState) update(req Request, normalized, hash string) {
	s.lastSentText = normalized
	s.lastNoteHash = hash
	if req.TranscriptCursor != "" {
		s.lastTranscriptCursor = req.TranscriptCursor
	}
	if req.AcceptedDisposition != nil {
		s.lastAcceptedDispositionHash = DispositionHash(req.AcceptedDisposition)
	}
}

// DispositionHash digests the canonical JSON of an accept/deny payload.
// Go's encoding/json marshals map keys in sorted order, which gives the
// canonical form directly.
func DispositionHash(disposition map[string]any) string {
	data, err := json.Marshal(disposition)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", disposition))
	}
	return notetext.Digest(string(data))
}

// stateFor returns the slot for key, creating it on first evaluation.
func (g *Gate) stateFor(key string) *noteState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[key]
	if !ok {
		st = &noteState{}
		g.states[key] = st
	}
	return st
}

// probeLocked lazily constructs the embedding probe. The slot mutex held by
// Evaluate does not cover g.mu, so take it here.
func (g *Gate) probeLocked() (*embedding.Probe, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.probe != nil {
		return g.probe, nil
	}
	client, err := g.factory()
	if err != nil {
		return nil, err
	}
	if got, want := client.ModelID(), g.cfg.EmbeddingModel; want != "" && got != want {
		slog.Warn("Embedding client model differs from configured model",
			"configured", want, "client", got)
	}
	g.probe = embedding.NewProbe(client)
	return g.probe, nil
}

// threshold computes max(minChars, ceil(pct * length)).
func threshold(minChars int, pct float64, length int) int {
	scaled := int(math.Ceil(pct * float64(length)))
	return maxInt(minChars, scaled)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// HasSalience is exported for span-level checks outside Evaluate (e.g. the
// compose pipeline highlighting clinically relevant diffs).
func HasSalience(oldSpan, newSpan string) bool {
	return hasSalience(oldSpan, newSpan)
}

// containsFold reports whether s contains substr ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
