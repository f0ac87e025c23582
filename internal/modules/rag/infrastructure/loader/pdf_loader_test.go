package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"RAGBot/internal/modules/rag/domain/document"

	"github.com/cloudwego/eino/schema"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unidoc/unipdf/v3/common/license"
)

// onePagePDF 生成只含一行 Helvetica 文本的单页 PDF，xref 偏移按实际字节计算
func onePagePDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFLoaderExtractsPageText(t *testing.T) {
	docs, err := NewPDFLoader().LoadBytes(context.Background(), "/staging/F_1/pricing.pdf", onePagePDF("The Basic Plan costs $10/month."))

	if !license.GetLicenseKey().IsLicensed() {
		// 未配置许可时必须报错，不能返回空页
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExtract)
		assert.NotErrorIs(t, err, ErrUnreadable)
		assert.Contains(t, err.Error(), "license")
		assert.Nil(t, docs)
		return
	}

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "The Basic Plan costs $10/month.")
	assert.Equal(t, "/staging/F_1/pricing.pdf", docs[0].MetaData[document.MetaSource])
	assert.Equal(t, 0, docs[0].MetaData[document.MetaPage])
}

func TestPDFLoaderRejectsCorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(p, []byte("this is not a pdf"), 0o644))

	_, err := NewPDFLoader().Load(context.Background(), document.StagedFile{Filename: "broken.pdf", Path: p})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestPDFLoaderMissingFile(t *testing.T) {
	_, err := NewPDFLoader().Load(context.Background(), document.StagedFile{Filename: "gone.pdf", Path: filepath.Join(t.TempDir(), "gone.pdf")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreadable)
}

type fakeLoader struct {
	calls atomic.Int32
}

func (f *fakeLoader) Load(_ context.Context, file document.StagedFile) ([]*schema.Document, error) {
	f.calls.Add(1)
	if file.Filename == "bad.pdf" {
		return nil, ErrUnreadable
	}
	return []*schema.Document{{Content: file.Filename, MetaData: map[string]any{document.MetaSource: file.Path, document.MetaPage: 0}}}, nil
}

func TestBatchLoaderIsolatesFailuresAndKeepsOrder(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	fl := &fakeLoader{}
	files := []document.StagedFile{{Filename: "a.pdf"}, {Filename: "bad.pdf"}, {Filename: "c.pdf"}}
	results := NewBatchLoader(fl, pool).LoadAll(context.Background(), files)

	require.Len(t, results, 3)
	assert.Equal(t, int32(3), fl.calls.Load())
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a.pdf", results[0].Pages[0].Content)
	assert.True(t, errors.Is(results[1].Err, ErrUnreadable))
	assert.Equal(t, "c.pdf", results[2].File.Filename)
}

func TestBatchLoaderWithoutPool(t *testing.T) {
	results := NewBatchLoader(&fakeLoader{}, nil).LoadAll(context.Background(), []document.StagedFile{{Filename: "a.pdf"}})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}
