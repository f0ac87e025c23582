package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

// retrieveState 召回 Pipeline 的中间状态
type retrieveState struct {
	Req         *RetrieveRequest
	Filter      repository.MetadataFilter
	QueryVec    []float32
	Hits        []repository.SearchHit
	Start       time.Time
	EmbeddingMs int64
	SearchMs    int64
	Err         error
}

// buildGraph 节点顺序：Validate → EmbedQuery → SearchVector → BuildResult
func (p *RetrievePipeline) buildGraph(ctx context.Context) (compose.Runnable[*RetrieveRequest, *retrieveOutput], error) {
	const (
		Validate     = "Validate"
		EmbedQuery   = "EmbedQuery"
		SearchVector = "SearchVector"
		BuildResult  = "BuildResult"
	)
	g := compose.NewGraph[*RetrieveRequest, *retrieveOutput]()
	_ = g.AddLambdaNode(Validate, compose.InvokableLambdaWithOption(p.validateNode), compose.WithNodeName(Validate))
	_ = g.AddLambdaNode(EmbedQuery, compose.InvokableLambdaWithOption(p.embedQueryNode), compose.WithNodeName(EmbedQuery))
	_ = g.AddLambdaNode(SearchVector, compose.InvokableLambdaWithOption(p.searchVectorNode), compose.WithNodeName(SearchVector))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))

	_ = g.AddEdge(compose.START, Validate)
	_ = g.AddEdge(Validate, EmbedQuery)
	_ = g.AddEdge(EmbedQuery, SearchVector)
	_ = g.AddEdge(SearchVector, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)
	return g.Compile(ctx, compose.WithGraphName("RAGRetrievePipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

// validateNode 校验参数并构造租户过滤条件
func (p *RetrievePipeline) validateNode(ctx context.Context, req *RetrieveRequest, _ ...any) (*retrieveState, error) {
	_ = ctx
	st := &retrieveState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = xerr.Validation("retrieve request is nil")
		return st, nil
	}
	if strings.TrimSpace(req.UserID) == "" {
		st.Err = xerr.Validation("user_id is required")
		return st, nil
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		st.Err = xerr.Validation("question is required")
		return st, nil
	}
	if req.TopK <= 0 {
		req.TopK = p.topK
	}
	st.Filter = repository.ByUser(req.UserID)
	return st, nil
}

func (p *RetrievePipeline) embedQueryNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st.Err != nil {
		return st, nil
	}
	start := time.Now()
	vecs, err := p.embedder.EmbedStrings(ctx, []string{st.Req.Question})
	if err != nil {
		st.Err = xerr.Upstream(fmt.Sprintf("embed question for user %q", st.Req.UserID), err)
		return st, nil
	}
	if len(vecs) == 0 {
		st.Err = xerr.Upstream("embed question", fmt.Errorf("embedding result is empty"))
		return st, nil
	}
	if p.vectorDim > 0 && len(vecs[0]) != p.vectorDim {
		st.Err = xerr.Upstream("embed question", fmt.Errorf("embedding dim mismatch: got=%d want=%d", len(vecs[0]), p.vectorDim))
		return st, nil
	}
	st.QueryVec = toFloat32(vecs[0])
	st.EmbeddingMs = time.Since(start).Milliseconds()
	return st, nil
}

func (p *RetrievePipeline) searchVectorNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st.Err != nil {
		return st, nil
	}
	start := time.Now()
	hits, err := p.vs.Search(ctx, st.QueryVec, st.Req.TopK, st.Filter)
	if err != nil {
		st.Err = xerr.Upstream(fmt.Sprintf("search vector store for user %q", st.Req.UserID), err)
		return st, nil
	}
	if len(hits) > st.Req.TopK {
		hits = hits[:st.Req.TopK]
	}
	st.Hits = hits
	st.SearchMs = time.Since(start).Milliseconds()
	return st, nil
}

func (p *RetrievePipeline) buildResultNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveOutput, error) {
	_ = ctx
	res := &RetrieveResult{
		Hits:        st.Hits,
		EmbeddingMs: st.EmbeddingMs,
		SearchMs:    st.SearchMs,
		DurationMs:  time.Since(st.Start).Milliseconds(),
	}
	if st.Req != nil {
		res.UserID = st.Req.UserID
		res.Question = st.Req.Question
	}
	if res.Hits == nil {
		res.Hits = []repository.SearchHit{}
	}
	zlog.Info(
		"rag retrieve done",
		zap.String("user_id", res.UserID),
		zap.Int("hits", len(res.Hits)),
		zap.Int64("embedding_ms", res.EmbeddingMs),
		zap.Int64("search_ms", res.SearchMs),
		zap.Int64("ms", res.DurationMs),
	)
	return &retrieveOutput{Result: res, Err: st.Err}, nil
}
