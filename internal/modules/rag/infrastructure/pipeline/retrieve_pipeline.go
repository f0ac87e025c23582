package pipeline

import (
	"context"
	"errors"
	"fmt"

	"RAGBot/internal/modules/rag/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// DefaultTopK 默认召回条数
const DefaultTopK = 3

type RetrieveRequest struct {
	UserID   string
	Question string
	TopK     int
}

type RetrieveResult struct {
	UserID      string                 `json:"user_id"`
	Question    string                 `json:"question"`
	Hits        []repository.SearchHit `json:"hits"`
	EmbeddingMs int64                  `json:"embedding_ms"`
	SearchMs    int64                  `json:"search_ms"`
	DurationMs  int64                  `json:"duration_ms"`
}

// RetrievePipeline 租户 + 问题 → 按 user_id 过滤的相似度检索，最多返回 TopK 条
type RetrievePipeline struct {
	embedder  embedding.Embedder
	vs        repository.VectorStore
	vectorDim int
	topK      int

	r compose.Runnable[*RetrieveRequest, *retrieveOutput]
}

func NewRetrievePipeline(embedder embedding.Embedder, vs repository.VectorStore, vectorDim, topK int) (*RetrievePipeline, error) {
	if embedder == nil {
		return nil, errors.New("embedder is nil")
	}
	if vs == nil {
		return nil, errors.New("vector store is nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	p := &RetrievePipeline{embedder: embedder, vs: vs, vectorDim: vectorDim, topK: topK}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build retrieve graph: %w", err)
	}
	p.r = r
	return p, nil
}

// Retrieve 无副作用；TopK<=0 时使用构造时的默认值
func (p *RetrievePipeline) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	out, err := p.r.Invoke(ctx, &req)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result, nil
}

type retrieveOutput struct {
	Result *RetrieveResult
	Err    error
}
