package repository

import (
	"context"

	"RAGBot/internal/modules/rag/domain/document"
)

// UploadRepository 上传文件台账
type UploadRepository interface {
	CreateUploadedFiles(ctx context.Context, files []*document.UploadedFile) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]document.UploadedFile, error)
	DeleteByOwner(ctx context.Context, ownerUserID string) (int64, error)
}
