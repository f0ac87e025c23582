package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"github.com/panjf2000/ants/v2"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

var (
	// ErrUnreadable 文件无法解析为 PDF
	ErrUnreadable = errors.New("unreadable pdf")
	// ErrExtract 文件结构正常但提取文本失败，常见原因是 unipdf 许可缺失或失效
	ErrExtract = errors.New("pdf text extraction failed")
)

// DocumentLoader 将暂存文件解析为按页划分的文档，source 为暂存路径，page 从 0 开始
type DocumentLoader interface {
	Load(ctx context.Context, file document.StagedFile) ([]*schema.Document, error)
}

// LoadResult 单文件解析结果
type LoadResult struct {
	File  document.StagedFile
	Pages []*schema.Document
	Err   error
}

var licenseOnce sync.Once

// SetLicenseKey 设置 unipdf 计量许可，只生效一次
func SetLicenseKey(key string) error {
	var err error
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	licenseOnce.Do(func() {
		err = license.SetMeteredKey(key)
	})
	return err
}

// PDFLoader 基于 unipdf 的逐页文本提取
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader { return &PDFLoader{} }

func (l *PDFLoader) Load(ctx context.Context, file document.StagedFile) ([]*schema.Document, error) {
	pdfBytes, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("read staged file %s: %w", file.Filename, err)
	}
	return l.LoadBytes(ctx, file.Path, pdfBytes)
}

// LoadBytes 解析 PDF 字节，source 元数据写入 sourcePath
func (l *PDFLoader) LoadBytes(ctx context.Context, sourcePath string, pdfBytes []byte) (docs []*schema.Document, err error) {
	// unipdf 对畸形文件可能 panic，按单文件失败处理
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if encrypted {
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: encrypted pdf", ErrUnreadable)
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	docs = make([]*schema.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractPage(pdfReader, i)
		if err != nil {
			zlog.Warn("pdf page text extraction failed", zap.String("source", sourcePath), zap.Int("page", i-1), zap.Error(err))
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtract, i-1, err)
		}
		docs = append(docs, &schema.Document{
			Content: text,
			MetaData: map[string]any{
				document.MetaSource: sourcePath,
				document.MetaPage:   i - 1,
			},
		})
	}
	return docs, nil
}

// extractPage 提取第 pageNum 页（从 1 开始）的纯文本
func extractPage(r *model.PdfReader, pageNum int) (string, error) {
	page, err := r.GetPage(pageNum)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}

// BatchLoader 在共享 ants 协程池上并发解析多个文件，单个文件失败不影响其他文件
type BatchLoader struct {
	loader DocumentLoader
	pool   *ants.Pool
}

func NewBatchLoader(loader DocumentLoader, pool *ants.Pool) *BatchLoader {
	return &BatchLoader{loader: loader, pool: pool}
}

// LoadAll 结果顺序与输入一致
func (b *BatchLoader) LoadAll(ctx context.Context, files []document.StagedFile) []LoadResult {
	results := make([]LoadResult, len(files))
	var wg sync.WaitGroup
	for i := range files {
		results[i].File = files[i]
		task := func() {
			defer wg.Done()
			pages, err := b.loader.Load(ctx, files[i])
			results[i].Pages = pages
			results[i].Err = err
		}
		wg.Add(1)
		if b.pool == nil {
			task()
			continue
		}
		if err := b.pool.Submit(task); err != nil {
			// 协程池已关闭或过载时在当前协程执行
			task()
		}
	}
	wg.Wait()
	return results
}
