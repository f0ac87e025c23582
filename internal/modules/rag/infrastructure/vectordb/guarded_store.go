package vectordb

import (
	"context"
	"errors"
	"sync"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/xerr"
)

// ErrEmptyFilter 空过滤条件会误删或越权读取全部租户数据
var ErrEmptyFilter = xerr.Validation("metadata filter must specify user_id")

// GuardedStore 包装底层存储：集合被销毁后，后续所有操作都返回 xerr.ErrCollectionDropped，需重启进程恢复
type GuardedStore struct {
	inner repository.VectorStore

	mu      sync.RWMutex
	dropped bool
}

var _ repository.VectorStore = (*GuardedStore)(nil)

func NewGuardedStore(inner repository.VectorStore) *GuardedStore {
	return &GuardedStore{inner: inner}
}

// Dropped 集合是否已被销毁
func (g *GuardedStore) Dropped() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dropped
}

func (g *GuardedStore) check() error {
	if g.Dropped() {
		return xerr.ErrCollectionDropped
	}
	return nil
}

func (g *GuardedStore) Upsert(ctx context.Context, records []repository.ChunkRecord) ([]string, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	return g.inner.Upsert(ctx, records)
}

func (g *GuardedStore) Search(ctx context.Context, vector []float32, topK int, filter repository.MetadataFilter) ([]repository.SearchHit, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	return g.inner.Search(ctx, vector, topK, filter)
}

func (g *GuardedStore) DeleteByFilter(ctx context.Context, filter repository.MetadataFilter) error {
	if err := g.check(); err != nil {
		return err
	}
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	return g.inner.DeleteByFilter(ctx, filter)
}

func (g *GuardedStore) Flush(ctx context.Context) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.Flush(ctx)
}

// DropCollection 只允许执行一次；底层失败时不标记为已销毁
func (g *GuardedStore) DropCollection(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dropped {
		return xerr.ErrCollectionDropped
	}
	if err := g.inner.DropCollection(ctx); err != nil {
		return err
	}
	g.dropped = true
	return nil
}

func (g *GuardedStore) Close() error {
	if g.inner == nil {
		return nil
	}
	err := g.inner.Close()
	if errors.Is(err, ErrStoreClosed) {
		return nil
	}
	return err
}
