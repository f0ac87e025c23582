package vectordb

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/zlog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	chunkPrefix = "c/"
	userPrefix  = "u/"
)

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("vector store is closed")

type badgerLoggerAdapter struct{}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (badgerLoggerAdapter) Errorf(msg string, items ...any) { zlog.Error(fmt.Sprintf(msg, items...)) }

func (badgerLoggerAdapter) Warningf(msg string, items ...any) { zlog.Warn(fmt.Sprintf(msg, items...)) }

func (badgerLoggerAdapter) Infof(msg string, items ...any) { zlog.Debug(fmt.Sprintf(msg, items...)) }

func (badgerLoggerAdapter) Debugf(msg string, items ...any) { zlog.Debug(fmt.Sprintf(msg, items...)) }

// BadgerStore 本地持久化向量库：记录存于 PersistDir，按租户前缀索引，检索时精确计算余弦相似度
type BadgerStore struct {
	db       *badger.DB
	inMemory bool

	mu     sync.Mutex
	closed bool
}

var _ repository.VectorStore = (*BadgerStore)(nil)

// OpenBadgerStore dir 为空且 inMemory 为 true 时使用内存模式（测试用）
func OpenBadgerStore(dir string, inMemory bool) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLoggerAdapter{}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, inMemory: inMemory}, nil
}

func chunkKey(id string) []byte { return []byte(chunkPrefix + id) }

func userIndexPrefix(userID string) []byte {
	return []byte(userPrefix + hex.EncodeToString([]byte(userID)) + "/")
}

func userIndexKey(userID, id string) []byte {
	return append(userIndexPrefix(userID), id...)
}

func (s *BadgerStore) Upsert(ctx context.Context, records []repository.ChunkRecord) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.ID == "" {
			return nil, errors.New("upsert item missing ID")
		}
		if r.UserID == "" {
			return nil, fmt.Errorf("upsert item %s missing user_id", r.ID)
		}
		bs, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		if err := wb.Set(chunkKey(r.ID), bs); err != nil {
			return nil, err
		}
		if err := wb.Set(userIndexKey(r.UserID, r.ID), nil); err != nil {
			return nil, err
		}
		ids = append(ids, r.ID)
	}
	if err := wb.Flush(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BadgerStore) Search(ctx context.Context, vector []float32, topK int, filter repository.MetadataFilter) ([]repository.SearchHit, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	if topK <= 0 {
		return []repository.SearchHit{}, nil
	}

	hits := make([]repository.SearchHit, 0, topK)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := userIndexPrefix(filter.UserID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(it.Item().Key()[len(prefix):])
			item, err := txn.Get(chunkKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var rec repository.ChunkRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if !filter.Match(rec) {
				continue
			}
			if len(rec.Vector) != len(vector) {
				return fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", rec.ID, len(rec.Vector), len(vector))
			}
			score := cosine(vector, rec.Vector)
			rec.Vector = nil
			hits = append(hits, repository.SearchHit{ChunkRecord: rec, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 同分保持存储顺序
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *BadgerStore) DeleteByFilter(ctx context.Context, filter repository.MetadataFilter) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	prefix := userIndexPrefix(filter.UserID)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, k, chunkKey(string(k[len(prefix):])))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Flush(context.Context) error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

func (s *BadgerStore) DropCollection(context.Context) error {
	return s.db.DropAll()
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
