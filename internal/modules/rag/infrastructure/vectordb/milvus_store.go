package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"RAGBot/internal/modules/rag/domain/repository"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Milvus 集合字段名
const (
	FieldID         = "id"
	FieldVector     = "vector"
	FieldUserID     = "user_id"
	FieldSource     = "source"
	FieldPage       = "page"
	FieldChunkIndex = "chunk_index"
	FieldFileID     = "file_id"
	FieldContent    = "content"
)

const maxContentRunes = 4096

// MilvusStore 是 repository.VectorStore 的 Milvus 实现
type MilvusStore struct {
	cli         mclient.Client
	collection  string
	metricType  entity.MetricType
	vectorDim   int
	searchParam entity.SearchParam
}

var _ repository.VectorStore = (*MilvusStore)(nil)

func NewMilvusStore(cli mclient.Client, collection string, vectorDim int, metricType entity.MetricType) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{cli: cli, collection: collection, metricType: metricType, vectorDim: vectorDim, searchParam: sp}, nil
}

func (s *MilvusStore) Upsert(ctx context.Context, items []repository.ChunkRecord) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	userIDs := make([]string, 0, len(items))
	sources := make([]string, 0, len(items))
	pages := make([]int64, 0, len(items))
	chunkIdx := make([]int64, 0, len(items))
	fileIDs := make([]string, 0, len(items))
	contents := make([]string, 0, len(items))

	for _, it := range items {
		if it.ID == "" {
			return nil, errors.New("upsert item missing ID")
		}
		if strings.TrimSpace(it.UserID) == "" {
			return nil, fmt.Errorf("upsert item %s missing user_id", it.ID)
		}
		if len(it.Vector) != s.vectorDim {
			return nil, fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", it.ID, len(it.Vector), s.vectorDim)
		}
		ids = append(ids, it.ID)
		vectors = append(vectors, it.Vector)
		userIDs = append(userIDs, it.UserID)
		sources = append(sources, it.Source)
		pages = append(pages, int64(it.Page))
		chunkIdx = append(chunkIdx, int64(it.ChunkIndex))
		fileIDs = append(fileIDs, it.FileID)
		contents = append(contents, truncateRunes(it.Content, maxContentRunes))
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldVector, s.vectorDim, vectors),
		entity.NewColumnVarChar(FieldUserID, userIDs),
		entity.NewColumnVarChar(FieldSource, sources),
		entity.NewColumnInt64(FieldPage, pages),
		entity.NewColumnInt64(FieldChunkIndex, chunkIdx),
		entity.NewColumnVarChar(FieldFileID, fileIDs),
		entity.NewColumnVarChar(FieldContent, contents),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, filter repository.MetadataFilter) ([]repository.SearchHit, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}
	if topK <= 0 {
		return []repository.SearchHit{}, nil
	}
	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		filter.Expr(),
		[]string{FieldUserID, FieldSource, FieldPage, FieldChunkIndex, FieldFileID, FieldContent},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldVector,
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return []repository.SearchHit{}, nil
	}
	return parseSearchResult(res[0])
}

func (s *MilvusStore) DeleteByFilter(ctx context.Context, filter repository.MetadataFilter) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	return s.cli.Delete(ctx, s.collection, "", filter.Expr())
}

func (s *MilvusStore) Flush(ctx context.Context) error {
	return s.cli.Flush(ctx, s.collection, false)
}

func (s *MilvusStore) DropCollection(ctx context.Context) error {
	return s.cli.DropCollection(ctx, s.collection)
}

func (s *MilvusStore) Close() error {
	return s.cli.Close()
}

func parseSearchResult(sr mclient.SearchResult) ([]repository.SearchHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]repository.SearchHit, 0, sr.ResultCount)

	idCol := sr.IDs
	userCol := columnByName(sr.Fields, FieldUserID)
	sourceCol := columnByName(sr.Fields, FieldSource)
	pageCol := columnByName(sr.Fields, FieldPage)
	chunkCol := columnByName(sr.Fields, FieldChunkIndex)
	fileCol := columnByName(sr.Fields, FieldFileID)
	contentCol := columnByName(sr.Fields, FieldContent)

	for i := 0; i < sr.ResultCount; i++ {
		h := repository.SearchHit{}
		if idCol != nil {
			h.ID, _ = idCol.GetAsString(i)
		}
		if i < len(sr.Scores) {
			h.Score = sr.Scores[i]
		}
		if userCol != nil {
			h.UserID, _ = userCol.GetAsString(i)
		}
		if sourceCol != nil {
			h.Source, _ = sourceCol.GetAsString(i)
		}
		if pageCol != nil {
			v, _ := pageCol.GetAsInt64(i)
			h.Page = int(v)
		}
		if chunkCol != nil {
			v, _ := chunkCol.GetAsInt64(i)
			h.ChunkIndex = int(v)
		}
		if fileCol != nil {
			h.FileID, _ = fileCol.GetAsString(i)
		}
		if contentCol != nil {
			h.Content, _ = contentCol.GetAsString(i)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
