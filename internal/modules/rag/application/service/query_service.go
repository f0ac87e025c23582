package service

import (
	"context"
	"strings"
	"time"

	"RAGBot/internal/metrics"
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/dto/respond"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/pipeline"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"go.uber.org/zap"
)

// QueryService 检索 + 生成回答
type QueryService interface {
	Query(ctx context.Context, req request.QueryRequest) (*respond.QueryRespond, error)
}

type queryServiceImpl struct {
	retrieve *pipeline.RetrievePipeline
	answer   *pipeline.AnswerPipeline
	cache    repository.AnswerCache
	vs       repository.VectorStore
}

// NewQueryService cache 可为 nil；vs 用于在读缓存前确认集合仍然存在，可为 nil
func NewQueryService(retrieve *pipeline.RetrievePipeline, answer *pipeline.AnswerPipeline, cache repository.AnswerCache, vs repository.VectorStore) QueryService {
	return &queryServiceImpl{retrieve: retrieve, answer: answer, cache: cache, vs: vs}
}

func (s *queryServiceImpl) Query(ctx context.Context, req request.QueryRequest) (*respond.QueryRespond, error) {
	if s.retrieve == nil || s.answer == nil {
		return nil, xerr.Internal("query service not initialized", nil)
	}
	// user_id 按原样匹配租户，仅拒绝空白
	userID := req.UserID
	question := strings.TrimSpace(req.Question)
	if strings.TrimSpace(userID) == "" {
		return nil, xerr.Validation("user_id is required")
	}
	if question == "" {
		return nil, xerr.Validation("question is required")
	}

	// 集合销毁后缓存里的旧答案同样不可再返回
	if ds, ok := s.vs.(dropState); ok && ds.Dropped() {
		return nil, xerr.ErrCollectionDropped
	}

	if cached := s.lookup(ctx, userID, question); cached != nil {
		return cached, nil
	}

	// 1. 检索完成后才调用 LLM，引用来源只取自检索结果
	start := time.Now()
	ret, err := s.retrieve.Retrieve(ctx, pipeline.RetrieveRequest{UserID: userID, Question: question})
	metrics.ObserveStage("retrieve", start)
	if err != nil {
		return nil, classify(ctx, err)
	}

	// 2. 生成
	start = time.Now()
	ans, err := s.answer.Answer(ctx, pipeline.AnswerRequest{UserID: userID, Question: question, Hits: ret.Hits})
	metrics.ObserveStage("answer", start)
	if err != nil {
		return nil, classify(ctx, err)
	}

	resp := &respond.QueryRespond{
		Answer:          ans.Answer,
		SourceDocuments: toSourceDocuments(ret.Hits),
	}
	s.store(ctx, userID, question, resp)
	return resp, nil
}

// lookup 缓存异常只记日志
func (s *queryServiceImpl) lookup(ctx context.Context, userID, question string) *respond.QueryRespond {
	if s.cache == nil {
		return nil
	}
	c, ok, err := s.cache.Get(ctx, userID, question)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		zlog.Warn("answer cache get failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	case !ok:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	resp := &respond.QueryRespond{Answer: c.Answer, SourceDocuments: make([]respond.SourceDocument, 0, len(c.Sources))}
	for _, src := range c.Sources {
		resp.SourceDocuments = append(resp.SourceDocuments, respond.SourceDocument{Source: src.Source, Page: src.Page})
	}
	return resp
}

func (s *queryServiceImpl) store(ctx context.Context, userID, question string, resp *respond.QueryRespond) {
	if s.cache == nil {
		return
	}
	c := &repository.CachedAnswer{Answer: resp.Answer, Sources: make([]repository.CachedSource, 0, len(resp.SourceDocuments))}
	for _, d := range resp.SourceDocuments {
		c.Sources = append(c.Sources, repository.CachedSource{Source: d.Source, Page: d.Page})
	}
	if err := s.cache.Put(ctx, userID, question, c); err != nil {
		zlog.Warn("answer cache put failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// toSourceDocuments 顺序与检索结果一致；缺失字段用 Unknown / N/A 占位
func toSourceDocuments(hits []repository.SearchHit) []respond.SourceDocument {
	out := make([]respond.SourceDocument, 0, len(hits))
	for _, h := range hits {
		d := respond.SourceDocument{Source: h.Source, Page: h.Page}
		if strings.TrimSpace(d.Source) == "" {
			d.Source = unknownSource
		}
		if h.Page < 0 {
			d.Page = unknownPage
		}
		out = append(out, d)
	}
	return out
}
