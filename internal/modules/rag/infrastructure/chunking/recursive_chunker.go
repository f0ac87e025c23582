package chunking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"RAGBot/internal/modules/rag/domain/document"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	einoDocument "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DefaultSeparators 段落 → 行 → 词，最后按字符硬切
var DefaultSeparators = []string{"\n\n", "\n", " "}

// Chunker 将页面文本切分为固定大小、带重叠的片段，长度按字符（rune）计
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string

	initOnce      sync.Once
	initErr       error
	recursiveImpl einoDocument.Transformer
}

// NewChunker 创建切片器，非法参数回落到安全值
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}
}

// Chunk 按字符数硬切，确保多字节字符不会被截断
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	totalLen := len(runes)
	if totalLen <= c.ChunkSize {
		return []string{text}
	}

	var chunks []string
	step := c.ChunkSize - c.ChunkOverlap
	if step <= 0 {
		step = 1
	}

	for i := 0; i < totalLen; i += step {
		end := i + c.ChunkSize
		if end > totalLen {
			end = totalLen
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == totalLen {
			break
		}
	}
	return chunks
}

func (c *Chunker) splitter(ctx context.Context) (einoDocument.Transformer, error) {
	c.initOnce.Do(func() {
		seps := c.Separators
		if len(seps) == 0 {
			seps = DefaultSeparators
		}
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  seps,
			LenFunc:     utf8.RuneCountInString,
			KeepType:    recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.recursiveImpl = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.recursiveImpl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}
	return c.recursiveImpl, nil
}

// ChunkDocuments 切分页面文档，每个片段继承原文档全部元数据并写入 chunk_index
func (c *Chunker) ChunkDocuments(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	if len(docs) == 0 {
		return []*schema.Document{}, nil
	}
	impl, err := c.splitter(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*schema.Document, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		frags, err := impl.Transform(ctx, []*schema.Document{{Content: d.Content}})
		if err != nil {
			return nil, err
		}

		idx := 0
		for _, f := range frags {
			if f == nil {
				continue
			}
			// 无分隔符可用的超长片段按字符硬切
			for _, part := range c.Chunk(f.Content) {
				if strings.TrimSpace(part) == "" {
					continue
				}
				n := &schema.Document{Content: part, MetaData: make(map[string]any, len(d.MetaData)+1)}
				for k, v := range d.MetaData {
					n.MetaData[k] = v
				}
				n.MetaData[document.MetaChunkIndex] = idx
				out = append(out, n)
				idx++
			}
		}
	}
	return out, nil
}
