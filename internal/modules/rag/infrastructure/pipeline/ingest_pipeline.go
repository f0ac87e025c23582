package pipeline

import (
	"context"
	"errors"
	"fmt"

	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/chunking"
	"RAGBot/internal/modules/rag/infrastructure/loader"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// embedBatchSize 单次 EmbedStrings 的最大文本数
const embedBatchSize = 64

type IngestRequest struct {
	UserID string
	Files  []document.StagedFile
}

// IngestPipeline 上传文件 → 逐页提取 → 切分 → 打标签 → 向量化 → 写入并落盘
type IngestPipeline struct {
	loader    *loader.BatchLoader
	chunker   *chunking.Chunker
	embedder  embedding.Embedder
	vs        repository.VectorStore
	vectorDim int

	r compose.Runnable[*IngestRequest, *ingestOutput]
}

func NewIngestPipeline(bl *loader.BatchLoader, chunker *chunking.Chunker, embedder embedding.Embedder, vs repository.VectorStore, vectorDim int) (*IngestPipeline, error) {
	if bl == nil {
		return nil, errors.New("document loader is nil")
	}
	if chunker == nil {
		return nil, errors.New("chunker is nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder is nil")
	}
	if vs == nil {
		return nil, errors.New("vector store is nil")
	}
	p := &IngestPipeline{loader: bl, chunker: chunker, embedder: embedder, vs: vs, vectorDim: vectorDim}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build ingest graph: %w", err)
	}
	p.r = r
	return p, nil
}

// Ingest 返回逐文件结果；embedding 或向量库失败时整体返回错误，结果中仍带已知的文件状态
func (p *IngestPipeline) Ingest(ctx context.Context, req IngestRequest) (*document.BatchResult, error) {
	out, err := p.r.Invoke(ctx, &req)
	if err != nil {
		return nil, err
	}
	return out.Result, out.Err
}

// ingestOutput 图输出；业务错误随结果一起带出，保留 xerr 类型与逐文件状态
type ingestOutput struct {
	Result *document.BatchResult
	Err    error
}
