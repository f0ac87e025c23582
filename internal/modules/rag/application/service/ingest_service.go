package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"RAGBot/internal/metrics"
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/dto/respond"
	"RAGBot/internal/modules/rag/domain/document"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/mq"
	"RAGBot/internal/modules/rag/infrastructure/pipeline"
	"RAGBot/internal/modules/rag/infrastructure/staging"
	"RAGBot/pkg/util"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"go.uber.org/zap"
)

// IngestService 上传入库服务
type IngestService interface {
	// Upload 暂存并入库一批 PDF。
	//
	// 至少一个文件成功时返回 (resp, nil)；全部失败时同时返回 resp 与第一个失败文件的错误，
	// 便于调用方把逐文件结果附在错误响应中。
	Upload(ctx context.Context, userID string, files []request.UploadFile) (*respond.UploadRespond, error)
}

type ingestServiceImpl struct {
	staging    *staging.Store
	pipeline   *pipeline.IngestPipeline
	ledger     repository.UploadRepository
	cache      repository.AnswerCache
	events     *mq.EventEmitter
	keepStaged bool
}

// NewIngestService ledger/cache/events 均可为 nil
func NewIngestService(st *staging.Store, p *pipeline.IngestPipeline, ledger repository.UploadRepository, cache repository.AnswerCache, events *mq.EventEmitter, keepStaged bool) IngestService {
	return &ingestServiceImpl{staging: st, pipeline: p, ledger: ledger, cache: cache, events: events, keepStaged: keepStaged}
}

// slot 一个上传文件在本次请求中的处理位置
type slot struct {
	name   string
	staged *document.StagedFile
	result document.FileResult
}

func (s *ingestServiceImpl) Upload(ctx context.Context, userID string, files []request.UploadFile) (*respond.UploadRespond, error) {
	if s.pipeline == nil || s.staging == nil {
		return nil, xerr.Internal("ingest service not initialized", nil)
	}
	// user_id 按原样作为租户键，仅拒绝空白
	if strings.TrimSpace(userID) == "" {
		return nil, xerr.Validation("user_id is required")
	}
	if len(files) == 0 {
		return nil, xerr.Validation("at least one file is required")
	}

	// 1. 暂存；非 PDF 与超限文件只影响自身，写盘失败终止整个请求
	slots := make([]*slot, 0, len(files))
	var toIngest []document.StagedFile
	for _, f := range files {
		sl := &slot{name: util.BaseName(f.Filename)}
		slots = append(slots, sl)

		if !strings.EqualFold(filepath.Ext(sl.name), ".pdf") {
			sl.result = failedResult(sl.name, xerr.Validation(fmt.Sprintf("only PDF files are supported: %q", f.Filename)))
			continue
		}
		staged, err := s.stage(f)
		if errors.Is(err, staging.ErrTooLarge) {
			sl.result = failedResult(sl.name, xerr.Wrap(xerr.RequestTooLarge, "file too large", err))
			continue
		}
		if err != nil {
			s.cleanup(slots)
			return nil, xerr.Internal(fmt.Sprintf("stage upload for user %q", userID), err)
		}
		sl.staged = &staged
		toIngest = append(toIngest, staged)
	}

	// 2. 入库
	var batch *document.BatchResult
	if len(toIngest) > 0 {
		var err error
		batch, err = s.pipeline.Ingest(ctx, pipeline.IngestRequest{UserID: userID, Files: toIngest})
		if err != nil {
			err = classify(ctx, err)
			for _, sl := range slots {
				if sl.staged != nil {
					sl.result = failedResult(sl.name, err)
					sl.result.FileID = sl.staged.FileID
				}
			}
			s.record(ctx, userID, slots)
			if !s.keepStaged {
				s.cleanup(slots)
			}
			zlog.Error("rag upload failed", zap.String("user_id", userID), zap.Int("files", len(files)), zap.Error(err))
			return nil, err
		}
	}
	if batch != nil {
		byID := make(map[string]document.FileResult, len(batch.Files))
		for _, r := range batch.Files {
			byID[r.FileID] = r
		}
		for _, sl := range slots {
			if sl.staged != nil {
				sl.result = byID[sl.staged.FileID]
			}
		}
	}

	// 3. 收尾：清理暂存、记台账、失效缓存、发事件
	if !s.keepStaged {
		s.cleanup(slots)
	}
	s.record(ctx, userID, slots)

	out := &document.BatchResult{UserID: userID, Files: make([]document.FileResult, 0, len(slots))}
	for _, sl := range slots {
		out.Files = append(out.Files, sl.result)
		metrics.IngestFiles.WithLabelValues(sl.result.Status).Inc()
	}
	metrics.IngestChunks.Add(float64(out.TotalChunks()))

	resp := &respond.UploadRespond{Message: MsgFilesProcessed, Files: out.Files}
	if out.Succeeded() == 0 {
		first, _ := out.FirstFailure()
		resp.Message = first.Error
		return resp, xerr.New(first.Code, fmt.Sprintf("no file could be processed: %s", first.Error))
	}
	if out.Succeeded() < len(out.Files) {
		resp.Message = MsgFilesPartial
	}

	if s.cache != nil {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			zlog.Warn("invalidate answer cache failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := s.events.Emit(ctx, mq.EventDocumentIngested, userID, out); err != nil {
		zlog.Warn("emit ingest event failed", zap.String("user_id", userID), zap.Error(err))
	}
	return resp, nil
}

func (s *ingestServiceImpl) stage(f request.UploadFile) (document.StagedFile, error) {
	if f.Open == nil {
		return document.StagedFile{}, errors.New("upload has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return document.StagedFile{}, err
	}
	defer rc.Close()
	return s.staging.Save(f.Filename, rc)
}

func (s *ingestServiceImpl) cleanup(slots []*slot) {
	for _, sl := range slots {
		if sl.staged == nil {
			continue
		}
		if err := s.staging.Remove(*sl.staged); err != nil {
			zlog.Warn("remove staged file failed", zap.String("path", sl.staged.Path), zap.Error(err))
		}
	}
}

// record 台账写入失败不影响上传结果
func (s *ingestServiceImpl) record(ctx context.Context, userID string, slots []*slot) {
	if s.ledger == nil {
		return
	}
	now := time.Now()
	rows := make([]*document.UploadedFile, 0, len(slots))
	for _, sl := range slots {
		row := &document.UploadedFile{
			FileId:      sl.result.FileID,
			OwnerUserId: userID,
			Filename:    sl.name,
			Pages:       sl.result.Pages,
			Chunks:      sl.result.Chunks,
			Status:      sl.result.Status,
			ErrorMsg:    truncate(sl.result.Error, 1024),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if sl.staged != nil {
			row.FileId = sl.staged.FileID
			row.ContentHash = sl.staged.ContentHash
			row.SizeBytes = sl.staged.Size
		}
		if row.FileId == "" {
			row.FileId = util.GenerateID("F")
		}
		rows = append(rows, row)
	}
	if err := s.ledger.CreateUploadedFiles(ctx, rows); err != nil {
		zlog.Warn("record uploaded files failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func failedResult(name string, err error) document.FileResult {
	return document.FileResult{
		Filename: name,
		Status:   document.FileStatusFailed,
		Error:    err.Error(),
		Code:     xerr.StatusOf(err),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
