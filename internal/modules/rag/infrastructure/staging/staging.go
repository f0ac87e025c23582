package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/pkg/util"
)

// ErrTooLarge 文件超过大小上限
var ErrTooLarge = errors.New("file exceeds upload size limit")

// Store 上传暂存目录，每个文件落在 <dir>/<FileID>/<原始文件名> 下，同名上传互不覆盖
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("staging dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save 写入暂存文件并计算摘要
func (s *Store) Save(filename string, r io.Reader) (_ document.StagedFile, err error) {
	name := util.BaseName(filename)
	if name == "" {
		return document.StagedFile{}, fmt.Errorf("invalid filename %q", filename)
	}
	fileID := util.GenerateID("F")
	sub := filepath.Join(s.dir, fileID)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return document.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(sub)
		}
	}()
	path := filepath.Join(sub, name)

	tmp, err := os.CreateTemp(sub, ".upload-*")
	if err != nil {
		return document.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	h := sha256.New()
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return document.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return document.StagedFile{}, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return document.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}

	return document.StagedFile{
		FileID:      fileID,
		Filename:    name,
		Path:        path,
		Size:        n,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Remove 删除暂存文件及其 FileID 子目录，不存在时忽略
func (s *Store) Remove(f document.StagedFile) error {
	if f.Path == "" {
		return nil
	}
	sub := filepath.Dir(f.Path)
	if filepath.Clean(filepath.Dir(sub)) == filepath.Clean(s.dir) {
		return os.RemoveAll(sub)
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
