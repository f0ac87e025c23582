package repository

import "context"

// CachedSource 缓存中的引用来源
type CachedSource struct {
	Source string `json:"source"`
	Page   any    `json:"page"`
}

// CachedAnswer 缓存的问答结果
type CachedAnswer struct {
	Answer  string         `json:"answer"`
	Sources []CachedSource `json:"sources"`
}

// AnswerCache 问答缓存。租户数据变更后必须 InvalidateUser，整库删除后 InvalidateAll
type AnswerCache interface {
	Get(ctx context.Context, userID, question string) (*CachedAnswer, bool, error)
	Put(ctx context.Context, userID, question string, ans *CachedAnswer) error
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}
