package gate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/clinscribe/pkg/config"
	"github.com/clinscribe/clinscribe/pkg/embedding"
)

// fakeEmbedder returns canned vectors per input text, falling back to def.
type fakeEmbedder struct {
	vecs map[string][]float32
	def  []float32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vecs[t]; ok {
			out[i] = v
		} else {
			out[i] = f.def
		}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelID() string { return "text-embedding-3-small" }

func newTestGate(t *testing.T, client embedding.Client) *Gate {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return New(cfg.Gate, cfg.Models.ByIntent, func() (embedding.Client, error) {
		return client, nil
	})
}

// longNote builds 80 short sentences on one line plus a trailing newline,
// comfortably past the cold-start minimum.
func longNote() string {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "sentence %d.", i)
	}
	b.WriteString("\n")
	return b.String()
}

func TestEvaluateColdStartDenial(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	dec, err := g.Evaluate(context.Background(), Request{
		NoteID: "n1",
		Text:   "short note without enough detail.",
		Intent: config.IntentAuto,
	})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonBelowThreshold, dec.ReasonCode)
	assert.Equal(t, http.StatusConflict, dec.StatusCode)
}

func TestEvaluateBoundaryAdmit(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	dec, err := g.Evaluate(context.Background(), Request{
		NoteID: "n2",
		Text:   longNote(),
		Intent: config.IntentAuto,
	})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Empty(t, dec.ReasonCode)
	assert.Equal(t, "gpt-4o", dec.ModelID)
	assert.Equal(t, http.StatusOK, dec.StatusCode)
}

func TestEvaluateAdditionalContentAdmit(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{0, 1, 0}})

	first, err := g.Evaluate(context.Background(), Request{NoteID: "n3", Text: longNote()})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	extended := longNote() + strings.Repeat("additional clinical details ", 6) + "."
	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n3", Text: extended})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Greater(t, dec.Detail.DeltaChars, dec.Detail.AutoThreshold)
}

func TestEvaluateSalienceBypass(t *testing.T) {
	// Same vector for every span: distance 0, so only salience can admit
	// a tiny edit.
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	first, err := g.Evaluate(context.Background(), Request{NoteID: "n4", Text: longNote()})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	dec, err := g.Evaluate(context.Background(), Request{
		NoteID: "n4",
		Text:   longNote() + "BP 170/110\n",
		Intent: config.IntentManual,
	})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.True(t, dec.Detail.Salient)
	assert.Equal(t, "gpt-4o-mini", dec.ModelID)
}

func TestEvaluateDuplicateDenial(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	first, err := g.Evaluate(context.Background(), Request{NoteID: "n5", Text: longNote()})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n5", Text: longNote()})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonDuplicateState, dec.ReasonCode)
	assert.Equal(t, http.StatusConflict, dec.StatusCode)
}

func TestEvaluateNotMeaningfulDenial(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	first, err := g.Evaluate(context.Background(), Request{NoteID: "n6", Text: longNote()})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	// Punctuation-only edit: both spans embed identically, distance 0.
	tweaked := strings.Replace(longNote(), "sentence 10.", "sentence 10!", 1)
	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n6", Text: tweaked})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonNotMeaningful, dec.ReasonCode)
	assert.Equal(t, http.StatusConflict, dec.StatusCode)
}

func TestEvaluateNoSentenceBoundary(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n7", Text: "typing mid sentenc"})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonNoSentenceBoundary, dec.ReasonCode)
}

func TestEvaluateDeniedEditStillAdvancesBaseline(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	_, err := g.Evaluate(context.Background(), Request{NoteID: "n8", Text: "tiny."})
	require.NoError(t, err)

	// Second tiny edit diffs against the first one, not against empty text.
	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n8", Text: "tiny again."})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Less(t, dec.Detail.DeltaChars, 15)
}

func TestReset(t *testing.T) {
	g := newTestGate(t, &fakeEmbedder{def: []float32{1, 0, 0}})

	first, err := g.Evaluate(context.Background(), Request{NoteID: "n9", Text: longNote()})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	g.Reset()

	// Identical text is no longer a duplicate after a reset.
	dec, err := g.Evaluate(context.Background(), Request{NoteID: "n9", Text: longNote()})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestNoteKey(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"note id wins", Request{NoteID: "abc", ClinicianID: "dr1"}, "note:abc"},
		{"clinician fallback", Request{ClinicianID: "dr1"}, "note:dr1"},
		{"unknown", Request{}, "note:unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NoteKey(tt.req))
		})
	}
}

func TestDispositionHashDeterministic(t *testing.T) {
	a := map[string]any{"accepted": []any{"I10"}, "denied": []any{"E11.9"}}
	b := map[string]any{"denied": []any{"E11.9"}, "accepted": []any{"I10"}}
	assert.Equal(t, DispositionHash(a), DispositionHash(b))
	assert.NotEqual(t, DispositionHash(a), DispositionHash(map[string]any{"accepted": []any{"I10"}}))
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 40, threshold(40, 0.05, 100))
	assert.Equal(t, 50, threshold(40, 0.05, 1000))
}

func TestHasSalience(t *testing.T) {
	tests := []struct {
		name    string
		oldSpan string
		newSpan string
		want    bool
	}{
		{"vitals", "", "bp 170/110", true},
		{"labs", "", "na 128 meq/l", true},
		{"med dose frequency", "", "metoprolol 25 mg bid", true},
		{"procedure", "", "obtain ekg and cxr", true},
		{"diagnosis", "", "concern for pneumonia", true},
		{"negation dropped", "denies chest pain", "chest pain at rest", true},
		{"positive without negation", "", "reports chest pain on exertion", true},
		{"negated positive stays quiet", "", "denies chest pain", false},
		{"plain prose", "follow up in clinic", "follow up in two weeks", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasSalience(tt.oldSpan, tt.newSpan))
		})
	}
}
