package persistence

import (
	"context"

	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/internal/modules/rag/domain/repository"

	"gorm.io/gorm"
)

type uploadRepositoryImpl struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) repository.UploadRepository {
	return &uploadRepositoryImpl{db: db}
}

// CreateUploadedFiles 批量写入上传台账
func (r *uploadRepositoryImpl) CreateUploadedFiles(ctx context.Context, files []*document.UploadedFile) error {
	if len(files) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(files, 100).Error
}

func (r *uploadRepositoryImpl) ListByOwner(ctx context.Context, ownerUserID string) ([]document.UploadedFile, error) {
	var out []document.UploadedFile
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByOwner 删除租户全部台账，返回删除行数；无记录时返回 0
func (r *uploadRepositoryImpl) DeleteByOwner(ctx context.Context, ownerUserID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Delete(&document.UploadedFile{})
	return res.RowsAffected, res.Error
}
