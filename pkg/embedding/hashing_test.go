package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashingProvider(t *testing.T) {
	ctx := context.Background()
	p := NewHashingProvider(0)
	assert.Equal(t, DefaultHashingDimension, p.Dimension())

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := p.GenerateEmbedding(ctx, "The user likes green tea")
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, "the USER likes green tea!")
		require.NoError(t, err)

		assert.Len(t, a, DefaultHashingDimension)
		assert.Equal(t, a, b)
		assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		query, _ := p.GenerateEmbedding(ctx, "green tea")
		near, _ := p.GenerateEmbedding(ctx, "drinks green tea every morning")
		far, _ := p.GenerateEmbedding(ctx, "deploys kubernetes clusters")

		assert.Greater(t, cosine(query, near), cosine(query, far))
	})

	t.Run("empty text", func(t *testing.T) {
		v, err := p.GenerateEmbedding(ctx, "  ...  ")
		require.NoError(t, err)
		assert.Equal(t, float32(1), v[0])
	})

	t.Run("batch", func(t *testing.T) {
		vs, err := p.GenerateEmbeddings(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Len(t, vs, 3)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.GenerateEmbedding(cctx, "x")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &HashingProvider{}, p)

	p, err = New(Config{Provider: ProviderHashing, Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, p.Dimension())

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	p, err = New(Config{Provider: ProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())

	_, err = New(Config{Provider: "word2vec"})
	assert.Error(t, err)
}
