package embedding

import (
	"context"

	"RAGBot/internal/modules/rag/infrastructure/retry"

	"github.com/cloudwego/eino/components/embedding"
)

// RetryingEmbedder 对服务商的瞬时错误做指数退避重试
type RetryingEmbedder struct {
	inner  embedding.Embedder
	policy retry.Policy
}

func WithRetry(inner embedding.Embedder, policy retry.Policy) embedding.Embedder {
	if inner == nil || policy.MaxAttempts <= 1 {
		return inner
	}
	return &RetryingEmbedder{inner: inner, policy: policy}
}

func (r *RetryingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	var out [][]float64
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		vecs, err := r.inner.EmbedStrings(ctx, texts, opts...)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	return out, err
}

var _ embedding.Embedder = (*RetryingEmbedder)(nil)
