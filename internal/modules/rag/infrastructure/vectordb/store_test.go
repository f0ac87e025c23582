package vectordb

import (
	"context"
	"errors"
	"testing"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id, user string, vec ...float32) repository.ChunkRecord {
	return repository.ChunkRecord{ID: id, UserID: user, Source: id + ".pdf", Vector: vec, Content: "text " + id}
}

func TestBadgerStore_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	_, err := s.Upsert(ctx, []repository.ChunkRecord{
		rec("a1", "A", 1, 0),
		rec("a2", "A", 0.9, 0.1),
		rec("b1", "B", 1, 0),
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 10, repository.ByUser("A"))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "A", h.UserID)
		assert.Nil(t, h.Vector)
	}
	assert.Equal(t, "a1", hits[0].ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestBadgerStore_PrefixUsersDoNotLeak(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	_, err := s.Upsert(ctx, []repository.ChunkRecord{
		rec("x", "a", 1, 0),
		rec("y", "a/b", 1, 0),
		rec("z", "ab", 1, 0),
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 10, repository.ByUser("a"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "x", hits[0].ID)
}

func TestBadgerStore_TopKBound(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	var records []repository.ChunkRecord
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		records = append(records, rec(id, "U", 1, 1))
	}
	_, err := s.Upsert(ctx, records)
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 1}, 3, repository.ByUser("U"))
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = s.Search(ctx, []float32{1, 1}, 0, repository.ByUser("U"))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBadgerStore_DeleteByFilterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	_, err := s.Upsert(ctx, []repository.ChunkRecord{rec("a1", "A", 1, 0), rec("b1", "B", 1, 0)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByFilter(ctx, repository.ByUser("A")))
	require.NoError(t, s.DeleteByFilter(ctx, repository.ByUser("A")))
	require.NoError(t, s.DeleteByFilter(ctx, repository.ByUser("nobody")))

	hits, err := s.Search(ctx, []float32{1, 0}, 3, repository.ByUser("A"))
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search(ctx, []float32{1, 0}, 3, repository.ByUser("B"))
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBadgerStore_RejectsEmptyFilterAndBadRecords(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	_, err := s.Search(ctx, []float32{1}, 3, repository.ByUser("  "))
	assert.ErrorIs(t, err, ErrEmptyFilter)
	assert.Equal(t, xerr.BadRequest, xerr.StatusOf(err))

	assert.ErrorIs(t, s.DeleteByFilter(ctx, repository.MetadataFilter{}), ErrEmptyFilter)

	_, err = s.Upsert(ctx, []repository.ChunkRecord{{ID: "x", Vector: []float32{1}}})
	assert.Error(t, err)

	_, err = s.Upsert(ctx, []repository.ChunkRecord{{UserID: "U", Vector: []float32{1}}})
	assert.Error(t, err)
}

func TestBadgerStore_CloseTwice(t *testing.T) {
	s, err := OpenBadgerStore("", true)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrStoreClosed)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir, false)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, []repository.ChunkRecord{rec("a1", "A", 1, 0)})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir, false)
	require.NoError(t, err)
	defer s.Close()

	hits, err := s.Search(ctx, []float32{1, 0}, 3, repository.ByUser("A"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1.pdf", hits[0].Source)
}

func TestGuardedStore_DropIsFinal(t *testing.T) {
	ctx := context.Background()
	g := NewGuardedStore(openMemStore(t))

	_, err := g.Upsert(ctx, []repository.ChunkRecord{rec("a1", "A", 1, 0)})
	require.NoError(t, err)
	require.NoError(t, g.DropCollection(ctx))
	assert.True(t, g.Dropped())

	_, err = g.Upsert(ctx, []repository.ChunkRecord{rec("a2", "A", 1, 0)})
	assert.ErrorIs(t, err, xerr.ErrCollectionDropped)

	_, err = g.Search(ctx, []float32{1, 0}, 3, repository.ByUser("A"))
	assert.ErrorIs(t, err, xerr.ErrCollectionDropped)

	assert.ErrorIs(t, g.DeleteByFilter(ctx, repository.ByUser("A")), xerr.ErrCollectionDropped)
	assert.ErrorIs(t, g.Flush(ctx), xerr.ErrCollectionDropped)
	assert.ErrorIs(t, g.DropCollection(ctx), xerr.ErrCollectionDropped)
	assert.Equal(t, xerr.ServiceUnavailable, xerr.StatusOf(err))
}

type failingDropStore struct {
	repository.VectorStore
}

func (failingDropStore) DropCollection(context.Context) error { return errors.New("milvus down") }

func TestGuardedStore_FailedDropKeepsStoreUsable(t *testing.T) {
	ctx := context.Background()
	g := NewGuardedStore(failingDropStore{VectorStore: openMemStore(t)})

	assert.Error(t, g.DropCollection(ctx))
	assert.False(t, g.Dropped())
	assert.NoError(t, g.Flush(ctx))
}

func TestGuardedStore_CloseIgnoresAlreadyClosed(t *testing.T) {
	s, err := OpenBadgerStore("", true)
	require.NoError(t, err)
	g := NewGuardedStore(s)
	require.NoError(t, g.Close())
	assert.NoError(t, g.Close())
}
