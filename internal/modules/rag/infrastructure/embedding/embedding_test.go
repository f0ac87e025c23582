package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"RAGBot/internal/config"
	"RAGBot/internal/modules/rag/infrastructure/retry"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.EmbedStrings(context.Background(), []string{"Basic Plan costs $10/month", "Basic Plan costs $10/month", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 64)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-9)
	for _, v := range vecs[2] {
		assert.Zero(t, v)
	}
}

func TestHashEmbedderRanksOverlappingTextHigher(t *testing.T) {
	e := NewHashEmbedder(384)
	vecs, err := e.EmbedStrings(context.Background(), []string{
		"How much does the Basic Plan cost?",
		"The Basic Plan costs $10/month.",
		"Our office is closed on public holidays.",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestNewEmbedderFromConfigLocal(t *testing.T) {
	conf := config.Default()
	em, meta, err := NewEmbedderFromConfig(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, em)
	assert.Equal(t, "local", meta.Provider)
	assert.Equal(t, 384, meta.Dim)
}

func TestNewEmbedderFromConfigErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_EMBED_MODEL", "")

	conf := config.Default()
	conf.AIConfig.Embedding.Provider = "openai"
	conf.AIConfig.Embedding.Model = ""
	_, _, err := NewEmbedderFromConfig(context.Background(), conf)
	assert.Error(t, err)

	conf.AIConfig.Embedding.Provider = "word2vec"
	_, _, err = NewEmbedderFromConfig(context.Background(), conf)
	assert.Error(t, err)

	_, _, err = NewEmbedderFromConfig(context.Background(), nil)
	assert.Error(t, err)
}

type flakyEmbedder struct {
	fails int
	calls int
}

func (f *flakyEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoEmbedding.Option) ([][]float64, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("429 too many requests")
	}
	return make([][]float64, len(texts)), nil
}

func TestWithRetry(t *testing.T) {
	inner := &flakyEmbedder{fails: 2}
	em := WithRetry(inner, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	vecs, err := em.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, inner.calls)

	assert.Same(t, inner, WithRetry(inner, retry.Policy{MaxAttempts: 1}))
}
