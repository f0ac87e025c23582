package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/loader"
	"RAGBot/pkg/util"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

var errNoText = errors.New("no extractable text")

type ingestState struct {
	Req *IngestRequest

	Results []document.FileResult
	// 与 Results 下标对应，失败文件为 nil
	Pages  [][]*schema.Document
	Docs   []*schema.Document
	Owner  []int // Docs[i] 所属文件下标
	Vecs   [][]float64
	Stored []string

	Start   time.Time
	EmbedMs int64
	StoreMs int64
	Err     error
}

func (p *IngestPipeline) buildGraph(ctx context.Context) (compose.Runnable[*IngestRequest, *ingestOutput], error) {
	const (
		Validate    = "Validate"
		Load        = "Load"
		Split       = "Split"
		Tag         = "Tag"
		Embed       = "Embed"
		Store       = "Store"
		BuildResult = "BuildResult"
	)

	g := compose.NewGraph[*IngestRequest, *ingestOutput]()

	_ = g.AddLambdaNode(Validate, compose.InvokableLambdaWithOption(p.validateNode), compose.WithNodeName(Validate))
	_ = g.AddLambdaNode(Load, compose.InvokableLambdaWithOption(p.loadNode), compose.WithNodeName(Load))
	_ = g.AddLambdaNode(Split, compose.InvokableLambdaWithOption(p.splitNode), compose.WithNodeName(Split))
	_ = g.AddLambdaNode(Tag, compose.InvokableLambdaWithOption(p.tagNode), compose.WithNodeName(Tag))
	_ = g.AddLambdaNode(Embed, compose.InvokableLambdaWithOption(p.embedNode), compose.WithNodeName(Embed))
	_ = g.AddLambdaNode(Store, compose.InvokableLambdaWithOption(p.storeNode), compose.WithNodeName(Store))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))

	_ = g.AddEdge(compose.START, Validate)
	_ = g.AddEdge(Validate, Load)
	_ = g.AddEdge(Load, Split)
	_ = g.AddEdge(Split, Tag)
	_ = g.AddEdge(Tag, Embed)
	_ = g.AddEdge(Embed, Store)
	_ = g.AddEdge(Store, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)

	return g.Compile(ctx, compose.WithGraphName("RAGIngestPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

func (p *IngestPipeline) validateNode(ctx context.Context, req *IngestRequest, _ ...any) (*ingestState, error) {
	_ = ctx
	st := &ingestState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = xerr.Validation("nil ingest request")
		return st, nil
	}
	if strings.TrimSpace(req.UserID) == "" {
		st.Err = xerr.Validation("user_id is required")
		return st, nil
	}
	if len(req.Files) == 0 {
		st.Err = xerr.Validation("at least one file is required")
		return st, nil
	}
	st.Results = make([]document.FileResult, len(req.Files))
	for i, f := range req.Files {
		st.Results[i] = document.FileResult{FileID: f.FileID, Filename: f.Filename, Status: document.FileStatusOK}
	}
	return st, nil
}

// loadNode 单个文件解析失败只影响该文件
func (p *IngestPipeline) loadNode(ctx context.Context, st *ingestState, _ ...any) (*ingestState, error) {
	if st.Err != nil {
		return st, nil
	}
	st.Pages = make([][]*schema.Document, len(st.Req.Files))
	for i, lr := range p.loader.LoadAll(ctx, st.Req.Files) {
		if lr.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				st.Err = ctxErr
				return st, nil
			}
			st.fail(i, lr.Err)
			continue
		}
		st.Results[i].Pages = len(lr.Pages)
		st.Pages[i] = lr.Pages
	}
	return st, nil
}

func (p *IngestPipeline) splitNode(ctx context.Context, st *ingestState, _ ...any) (*ingestState, error) {
	if st.Err != nil {
		return st, nil
	}
	for i, pages := range st.Pages {
		if !st.Results[i].OK() {
			continue
		}
		chunks, err := p.chunker.ChunkDocuments(ctx, pages)
		if err != nil {
			st.Err = xerr.Internal(fmt.Sprintf("split %s", st.Results[i].Filename), err)
			return st, nil
		}
		if len(chunks) == 0 {
			st.fail(i, errNoText)
			continue
		}
		st.Results[i].Chunks = len(chunks)
		for _, c := range chunks {
			st.Docs = append(st.Docs, c)
			st.Owner = append(st.Owner, i)
		}
	}
	return st, nil
}

// tagNode source 改写为不含目录的文件名并注入 user_id，保证检索只能按租户命中
func (p *IngestPipeline) tagNode(ctx context.Context, st *ingestState, _ ...any) (*ingestState, error) {
	_ = ctx
	if st.Err != nil {
		return st, nil
	}
	for i, d := range st.Docs {
		f := st.Req.Files[st.Owner[i]]
		source := util.BaseName(document.MetaString(d.MetaData, document.MetaSource))
		if source == "" {
			source = util.BaseName(f.Filename)
		}
		d.ID = uuidString()
		d.MetaData[document.MetaSource] = source
		d.MetaData[document.MetaUserID] = st.Req.UserID
		d.MetaData[document.MetaFileID] = f.FileID
	}
	return st, nil
}

func (p *IngestPipeline) embedNode(ctx context.Context, st *ingestState, _ ...any) (*ingestState, error) {
	if st.Err != nil || len(st.Docs) == 0 {
		return st, nil
	}
	start := time.Now()
	texts := make([]string, len(st.Docs))
	for i, d := range st.Docs {
		texts[i] = d.Content
	}

	vecs := make([][]float64, 0, len(texts))
	for begin := 0; begin < len(texts); begin += embedBatchSize {
		end := min(begin+embedBatchSize, len(texts))
		out, err := p.embedder.EmbedStrings(ctx, texts[begin:end])
		if err != nil {
			st.Err = xerr.Upstream(st.describe("embed documents"), err)
			return st, nil
		}
		if len(out) != end-begin {
			st.Err = xerr.Upstream(st.describe("embed documents"), fmt.Errorf("embedding result size mismatch: got=%d want=%d", len(out), end-begin))
			return st, nil
		}
		vecs = append(vecs, out...)
	}
	for _, v := range vecs {
		if p.vectorDim > 0 && len(v) != p.vectorDim {
			st.Err = xerr.Upstream(st.describe("embed documents"), fmt.Errorf("vector dim mismatch got=%d want=%d", len(v), p.vectorDim))
			return st, nil
		}
	}
	st.Vecs = vecs
	st.EmbedMs = time.Since(start).Milliseconds()
	return st, nil
}

func (p *IngestPipeline) storeNode(ctx context.Context, st *ingestState, _ ...any) (*ingestState, error) {
	if st.Err != nil || len(st.Docs) == 0 {
		return st, nil
	}
	start := time.Now()
	records := make([]repository.ChunkRecord, len(st.Docs))
	for i, d := range st.Docs {
		page, _ := document.MetaInt(d.MetaData, document.MetaPage)
		idx, _ := document.MetaInt(d.MetaData, document.MetaChunkIndex)
		records[i] = repository.ChunkRecord{
			ID:         d.ID,
			Vector:     toFloat32(st.Vecs[i]),
			UserID:     st.Req.UserID,
			Source:     document.MetaString(d.MetaData, document.MetaSource),
			Page:       page,
			ChunkIndex: idx,
			FileID:     document.MetaString(d.MetaData, document.MetaFileID),
			Content:    d.Content,
		}
	}

	ids, err := p.vs.Upsert(ctx, records)
	if err != nil {
		st.Err = xerr.Upstream(st.describe("store documents"), err)
		return st, nil
	}
	if err := p.vs.Flush(ctx); err != nil {
		st.Err = xerr.Upstream(st.describe("flush vector store"), err)
		return st, nil
	}
	st.Stored = ids
	st.StoreMs = time.Since(start).Milliseconds()
	return st, nil
}

func (p *IngestPipeline) buildResultNode(ctx context.Context, st *ingestState, _ ...any) (*ingestOutput, error) {
	_ = ctx
	res := &document.BatchResult{Files: st.Results}
	if st.Req != nil {
		res.UserID = st.Req.UserID
	}
	if res.Files == nil {
		res.Files = []document.FileResult{}
	}

	zlog.Info(
		"rag ingest done",
		zap.String("user_id", res.UserID),
		zap.Int("files", len(res.Files)),
		zap.Int("ok", res.Succeeded()),
		zap.Int("chunks", len(st.Stored)),
		zap.Int64("embed_ms", st.EmbedMs),
		zap.Int64("store_ms", st.StoreMs),
		zap.Int64("ms", time.Since(st.Start).Milliseconds()),
		zap.Error(st.Err),
	)
	return &ingestOutput{Result: res, Err: st.Err}, nil
}

// fail 记录单文件失败；解析类错误归为 400
func (st *ingestState) fail(i int, err error) {
	code := xerr.BadRequest
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		code = ce.Code
	} else if !errors.Is(err, loader.ErrUnreadable) && !errors.Is(err, errNoText) {
		code = xerr.InternalServerError
	}
	st.Results[i].Status = document.FileStatusFailed
	st.Results[i].Chunks = 0
	st.Results[i].Error = err.Error()
	st.Results[i].Code = code
}

// describe 错误上下文：租户与涉及文件
func (st *ingestState) describe(op string) string {
	names := make([]string, 0, len(st.Results))
	for _, r := range st.Results {
		if r.OK() {
			names = append(names, r.Filename)
		}
	}
	return fmt.Sprintf("%s for user %q (files: %s)", op, st.Req.UserID, strings.Join(names, ", "))
}
