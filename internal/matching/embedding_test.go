package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTextIsStableAndSensitiveToInput(t *testing.T) {
	a := HashText("coca cola 330ml")
	b := HashText("coca cola 330ml")
	c := HashText("coca cola 500ml")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestComputeCosineSimilarity(t *testing.T) {
	assert.InDelta(t, float32(1.0), ComputeCosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 0.0001)
	assert.InDelta(t, float32(0.0), ComputeCosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.Equal(t, float32(0), ComputeCosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, float32(0), ComputeCosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}

type fakeProvider struct {
	calls   int
	failFor int
	dim     int
}

func (f *fakeProvider) GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failFor {
		return nil, errors.New("transient provider error")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeProvider) ModelVersion() string { return "fake-v1" }
func (f *fakeProvider) Dimension() int       { return 3 }

func TestGenerateWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := &fakeProvider{failFor: 2}
	cfg := EmbeddingRetryConfig{MaxRetries: 3, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 1}

	out, err := GenerateWithRetry(context.Background(), p, []string{"a"}, cfg)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 3, p.calls)
}

func TestGenerateWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	p := &fakeProvider{failFor: 10}
	cfg := EmbeddingRetryConfig{MaxRetries: 2, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 1}

	_, err := GenerateWithRetry(context.Background(), p, []string{"a"}, cfg)
	assert.Error(t, err)
	assert.Equal(t, 3, p.calls) // initial attempt + 2 retries
}
