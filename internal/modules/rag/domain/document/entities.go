package document

import "time"

// UploadedFile 上传文件台账（MySQL）
type UploadedFile struct {
	Id          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	FileId      string    `gorm:"column:file_id;type:varchar(64);not null;uniqueIndex:uniq_rag_uploaded_file_id"`
	OwnerUserId string    `gorm:"column:owner_user_id;type:varchar(128);not null;index:idx_rag_uploaded_file_owner"`
	Filename    string    `gorm:"column:filename;type:varchar(255);not null"`
	ContentHash string    `gorm:"column:content_hash;type:char(64);not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null"`
	Pages       int       `gorm:"column:pages;not null;default:0"`
	Chunks      int       `gorm:"column:chunks;not null;default:0"`
	Status      string    `gorm:"column:status;type:varchar(16);not null"`
	ErrorMsg    string    `gorm:"column:error_msg;type:varchar(1024)"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (UploadedFile) TableName() string { return "rag_uploaded_file" }
