package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient returns canned vectors in order, one batch per call.
type fakeClient struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *fakeClient) ModelID() string { return "fake-embedding" }

func TestDistanceWhitespaceSpans(t *testing.T) {
	probe := NewProbe(&fakeClient{})

	for _, pair := range [][2]string{{"", "new text"}, {"old text", "   "}, {"", ""}} {
		d, err := probe.Distance(context.Background(), pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, 1.0, d)
	}
}

func TestDistanceIdenticalDirection(t *testing.T) {
	client := &fakeClient{vectors: [][]float32{{1, 0, 0}, {1, 0, 0}}}
	probe := NewProbe(client)

	d, err := probe.Distance(context.Background(), "alpha", "alpha again")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)
	assert.Equal(t, 1, client.calls)
}

func TestDistanceOrthogonal(t *testing.T) {
	probe := NewProbe(&fakeClient{vectors: [][]float32{{1, 0, 0}, {0, 1, 0}}})

	d, err := probe.Distance(context.Background(), "alpha", "beta")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)
}

func TestDistanceOppositeClamped(t *testing.T) {
	// cosine -1 gives raw distance 2; clamped into [0,1].
	probe := NewProbe(&fakeClient{vectors: [][]float32{{1, 0}, {-1, 0}}})

	d, err := probe.Distance(context.Background(), "a span", "b span")
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestDistanceZeroVector(t *testing.T) {
	probe := NewProbe(&fakeClient{vectors: [][]float32{{0, 0, 0}, {1, 0, 0}}})

	d, err := probe.Distance(context.Background(), "a span", "b span")
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestDistanceShortBatchIsProtocolError(t *testing.T) {
	probe := NewProbe(&fakeClient{vectors: [][]float32{{1, 0, 0}}})

	_, err := probe.Distance(context.Background(), "a span", "b span")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestDistanceBackendError(t *testing.T) {
	backendErr := errors.New("backend down")
	probe := NewProbe(&fakeClient{err: backendErr})

	_, err := probe.Distance(context.Background(), "a span", "b span")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backendErr))
	assert.False(t, errors.Is(err, ErrProtocol))
}
