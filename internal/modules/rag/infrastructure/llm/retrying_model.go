package llm

import (
	"context"
	"time"

	"RAGBot/internal/modules/rag/infrastructure/retry"
	"RAGBot/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// RetryingChatModel 对 Generate 的瞬时错误（限流、5xx、网络）做指数退避重试
type RetryingChatModel struct {
	inner  model.BaseChatModel
	policy retry.Policy
	meta   ChatModelMeta
}

var _ model.BaseChatModel = (*RetryingChatModel)(nil)

func WithRetry(inner model.BaseChatModel, meta ChatModelMeta, attempts int, baseDelay time.Duration, onRetry func()) model.BaseChatModel {
	if inner == nil || attempts <= 1 {
		return inner
	}
	return &RetryingChatModel{
		inner: inner,
		meta:  meta,
		policy: retry.Policy{
			MaxAttempts: attempts,
			BaseDelay:   baseDelay,
			MaxDelay:    10 * time.Second,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				if onRetry != nil {
					onRetry()
				}
				zlog.Warn("llm call failed, retrying",
					zap.String("provider", meta.Provider),
					zap.String("model", meta.Model),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err))
			},
		},
	}
}

func (r *RetryingChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var out *schema.Message
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		msg, err := r.inner.Generate(ctx, input, opts...)
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	return out, err
}

// Stream 流式输出不重试，直接透传
func (r *RetryingChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return r.inner.Stream(ctx, input, opts...)
}
