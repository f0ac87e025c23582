package vectordb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"RAGBot/internal/modules/rag/domain/repository"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMilvus 只实现 MilvusStore 用到的方法，其余方法调用会 panic
type fakeMilvus struct {
	mclient.Client

	upserted  []entity.Column
	searchReq struct {
		coll    string
		expr    string
		outputs []string
		vectors []entity.Vector
		field   string
		topK    int
	}
	searchRes []mclient.SearchResult
	searchErr error
	deleted   []string
	flushed   int
	dropped   int
	closed    bool
}

func (f *fakeMilvus) Upsert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	f.upserted = columns
	return columns[0], nil
}

func (f *fakeMilvus) Search(_ context.Context, collName string, _ []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, _ entity.MetricType, topK int, _ entity.SearchParam, _ ...mclient.SearchQueryOptionFunc) ([]mclient.SearchResult, error) {
	f.searchReq.coll = collName
	f.searchReq.expr = expr
	f.searchReq.outputs = outputFields
	f.searchReq.vectors = vectors
	f.searchReq.field = vectorField
	f.searchReq.topK = topK
	return f.searchRes, f.searchErr
}

func (f *fakeMilvus) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.deleted = append(f.deleted, expr)
	return nil
}

func (f *fakeMilvus) Flush(context.Context, string, bool, ...mclient.FlushOption) error {
	f.flushed++
	return nil
}

func (f *fakeMilvus) DropCollection(context.Context, string, ...mclient.DropCollectionOption) error {
	f.dropped++
	return nil
}

func (f *fakeMilvus) Close() error {
	f.closed = true
	return nil
}

func newFakeMilvusStore(t *testing.T, dim int) (*MilvusStore, *fakeMilvus) {
	t.Helper()
	cli := &fakeMilvus{}
	s, err := NewMilvusStore(cli, "rag_chunks", dim, entity.COSINE)
	require.NoError(t, err)
	return s, cli
}

func column(t *testing.T, cols []entity.Column, name string) entity.Column {
	t.Helper()
	c := columnByName(cols, name)
	require.NotNil(t, c, "column %s", name)
	return c
}

func TestNewMilvusStore_Validation(t *testing.T) {
	_, err := NewMilvusStore(nil, "c", 4, entity.COSINE)
	assert.Error(t, err)
	_, err = NewMilvusStore(&fakeMilvus{}, " ", 4, entity.COSINE)
	assert.Error(t, err)
	_, err = NewMilvusStore(&fakeMilvus{}, "c", 0, entity.COSINE)
	assert.Error(t, err)
}

func TestMilvusStore_UpsertColumns(t *testing.T) {
	s, cli := newFakeMilvusStore(t, 2)
	long := strings.Repeat("é", maxContentRunes+10)

	ids, err := s.Upsert(context.Background(), []repository.ChunkRecord{
		{ID: "c1", Vector: []float32{1, 0}, UserID: "U1", Source: "a.pdf", Page: 3, ChunkIndex: 1, FileID: "F_1", Content: "hello"},
		{ID: "c2", Vector: []float32{0, 1}, UserID: "U1", Source: "a.pdf", Page: 4, ChunkIndex: 2, FileID: "F_1", Content: long},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
	require.Len(t, cli.upserted, 8)

	assert.Equal(t, []string{"c1", "c2"}, column(t, cli.upserted, FieldID).(*entity.ColumnVarChar).Data())
	assert.Equal(t, []string{"U1", "U1"}, column(t, cli.upserted, FieldUserID).(*entity.ColumnVarChar).Data())
	assert.Equal(t, []int64{3, 4}, column(t, cli.upserted, FieldPage).(*entity.ColumnInt64).Data())
	assert.Equal(t, []int64{1, 2}, column(t, cli.upserted, FieldChunkIndex).(*entity.ColumnInt64).Data())
	assert.Equal(t, []string{"F_1", "F_1"}, column(t, cli.upserted, FieldFileID).(*entity.ColumnVarChar).Data())

	vecs := column(t, cli.upserted, FieldVector).(*entity.ColumnFloatVector)
	assert.Equal(t, 2, vecs.Dim())
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs.Data())

	contents := column(t, cli.upserted, FieldContent).(*entity.ColumnVarChar).Data()
	assert.Equal(t, "hello", contents[0])
	assert.Equal(t, maxContentRunes, len([]rune(contents[1])))
}

func TestMilvusStore_UpsertRejectsBadRecords(t *testing.T) {
	s, cli := newFakeMilvusStore(t, 2)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []repository.ChunkRecord{{Vector: []float32{1, 0}, UserID: "U1"}})
	assert.Error(t, err)
	_, err = s.Upsert(ctx, []repository.ChunkRecord{{ID: "c1", Vector: []float32{1, 0}, UserID: " "}})
	assert.Error(t, err)
	_, err = s.Upsert(ctx, []repository.ChunkRecord{{ID: "c1", Vector: []float32{1}, UserID: "U1"}})
	assert.Error(t, err)
	assert.Nil(t, cli.upserted)

	ids, err := s.Upsert(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMilvusStore_Search(t *testing.T) {
	s, cli := newFakeMilvusStore(t, 2)
	cli.searchRes = []mclient.SearchResult{{
		ResultCount: 2,
		IDs:         entity.NewColumnVarChar(FieldID, []string{"c1", "c2"}),
		Fields: mclient.ResultSet{
			entity.NewColumnVarChar(FieldUserID, []string{`a"b`, `a"b`}),
			entity.NewColumnVarChar(FieldSource, []string{"a.pdf", "b.pdf"}),
			entity.NewColumnInt64(FieldPage, []int64{0, 5}),
			entity.NewColumnInt64(FieldChunkIndex, []int64{0, 1}),
			entity.NewColumnVarChar(FieldFileID, []string{"F_1", "F_2"}),
			entity.NewColumnVarChar(FieldContent, []string{"alpha", "beta"}),
		},
		Scores: []float32{0.9, 0.4},
	}}

	hits, err := s.Search(context.Background(), []float32{1, 0}, 3, repository.ByUser(`a"b`))
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "rag_chunks", cli.searchReq.coll)
	assert.Equal(t, `user_id == "a\"b"`, cli.searchReq.expr)
	assert.Equal(t, FieldVector, cli.searchReq.field)
	assert.Equal(t, 3, cli.searchReq.topK)
	assert.ElementsMatch(t, []string{FieldUserID, FieldSource, FieldPage, FieldChunkIndex, FieldFileID, FieldContent}, cli.searchReq.outputs)
	require.Len(t, cli.searchReq.vectors, 1)
	assert.Equal(t, entity.FloatVector{1, 0}, cli.searchReq.vectors[0])

	assert.Equal(t, repository.SearchHit{
		ChunkRecord: repository.ChunkRecord{ID: "c1", UserID: `a"b`, Source: "a.pdf", Page: 0, ChunkIndex: 0, FileID: "F_1", Content: "alpha"},
		Score:       0.9,
	}, hits[0])
	assert.Equal(t, "b.pdf", hits[1].Source)
	assert.Equal(t, 5, hits[1].Page)
	assert.Equal(t, float32(0.4), hits[1].Score)
}

func TestMilvusStore_SearchGuards(t *testing.T) {
	s, cli := newFakeMilvusStore(t, 2)
	ctx := context.Background()

	_, err := s.Search(ctx, []float32{1, 0}, 3, repository.ByUser(""))
	assert.ErrorIs(t, err, ErrEmptyFilter)
	_, err = s.Search(ctx, []float32{1}, 3, repository.ByUser("U1"))
	assert.Error(t, err)
	hits, err := s.Search(ctx, []float32{1, 0}, 0, repository.ByUser("U1"))
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, cli.searchReq.expr, "guards must not reach milvus")

	hits, err = s.Search(ctx, []float32{1, 0}, 3, repository.ByUser("U1"))
	require.NoError(t, err)
	assert.Empty(t, hits)

	cli.searchErr = errors.New("milvus unavailable")
	_, err = s.Search(ctx, []float32{1, 0}, 3, repository.ByUser("U1"))
	assert.EqualError(t, err, "milvus unavailable")
}

func TestParseSearchResult(t *testing.T) {
	tests := []struct {
		name    string
		sr      mclient.SearchResult
		want    []repository.SearchHit
		wantErr string
	}{
		{
			name:    "result error",
			sr:      mclient.SearchResult{Err: errors.New("shard offline")},
			wantErr: "shard offline",
		},
		{
			name: "empty",
			sr:   mclient.SearchResult{},
			want: []repository.SearchHit{},
		},
		{
			name: "missing output fields leave zero values",
			sr: mclient.SearchResult{
				ResultCount: 1,
				IDs:         entity.NewColumnVarChar(FieldID, []string{"c9"}),
				Fields:      mclient.ResultSet{entity.NewColumnVarChar(FieldContent, []string{"only content"})},
				Scores:      []float32{0.5},
			},
			want: []repository.SearchHit{{ChunkRecord: repository.ChunkRecord{ID: "c9", Content: "only content"}, Score: 0.5}},
		},
		{
			name: "scores shorter than result count",
			sr: mclient.SearchResult{
				ResultCount: 2,
				IDs:         entity.NewColumnVarChar(FieldID, []string{"c1", "c2"}),
				Scores:      []float32{0.7},
			},
			want: []repository.SearchHit{
				{ChunkRecord: repository.ChunkRecord{ID: "c1"}, Score: 0.7},
				{ChunkRecord: repository.ChunkRecord{ID: "c2"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSearchResult(tt.sr)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMilvusStore_DeleteFlushDropClose(t *testing.T) {
	s, cli := newFakeMilvusStore(t, 2)
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteByFilter(ctx, repository.ByUser(" ")), ErrEmptyFilter)
	require.NoError(t, s.DeleteByFilter(ctx, repository.ByUser(`x" || user_id != "`)))
	assert.Equal(t, []string{`user_id == "x\" || user_id != \""`}, cli.deleted)

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.DropCollection(ctx))
	require.NoError(t, s.Close())
	assert.Equal(t, 1, cli.flushed)
	assert.Equal(t, 1, cli.dropped)
	assert.True(t, cli.closed)
}
