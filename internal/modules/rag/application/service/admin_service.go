package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"RAGBot/internal/metrics"
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/dto/respond"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/mq"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"go.uber.org/zap"
)

// AdminService 租户数据与集合管理
type AdminService interface {
	// DeleteUserData 删除租户全部 chunk 并落盘；租户不存在时同样成功
	DeleteUserData(ctx context.Context, req request.DeleteUserDataRequest) (*respond.MessageRespond, error)
	// DeleteCollection 销毁集合，之后所有存储操作都会失败，需重启进程
	DeleteCollection(ctx context.Context) (*respond.MessageRespond, error)
	Health(ctx context.Context) *respond.HealthRespond
}

// dropState 可报告集合是否已销毁的存储
type dropState interface {
	Dropped() bool
}

type adminServiceImpl struct {
	vs     repository.VectorStore
	ledger repository.UploadRepository
	cache  repository.AnswerCache
	events *mq.EventEmitter
}

// NewAdminService ledger/cache/events 均可为 nil
func NewAdminService(vs repository.VectorStore, ledger repository.UploadRepository, cache repository.AnswerCache, events *mq.EventEmitter) AdminService {
	return &adminServiceImpl{vs: vs, ledger: ledger, cache: cache, events: events}
}

func (s *adminServiceImpl) DeleteUserData(ctx context.Context, req request.DeleteUserDataRequest) (*respond.MessageRespond, error) {
	userID := req.UserID
	if strings.TrimSpace(userID) == "" {
		return nil, xerr.Validation("user_id is required")
	}
	filter := repository.ByUser(userID)
	if err := s.vs.DeleteByFilter(ctx, filter); err != nil {
		return nil, classify(ctx, xerr.Upstream(fmt.Sprintf("delete documents for user %q", userID), err))
	}
	if err := s.vs.Flush(ctx); err != nil {
		return nil, classify(ctx, xerr.Upstream(fmt.Sprintf("flush after deleting user %q", userID), err))
	}

	var rows int64
	if s.ledger != nil {
		n, err := s.ledger.DeleteByOwner(ctx, userID)
		if err != nil {
			zlog.Warn("delete upload ledger failed", zap.String("user_id", userID), zap.Error(err))
		}
		rows = n
	}
	// 缓存未清掉时不能报告成功，否则旧答案仍会返回；chunk 已删，重试幂等
	if s.cache != nil {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			zlog.Error("invalidate answer cache failed", zap.String("user_id", userID), zap.Error(err))
			return nil, classify(ctx, xerr.Upstream(fmt.Sprintf("invalidate answer cache for user %q", userID), err))
		}
	}
	if err := s.events.Emit(ctx, mq.EventTenantPurged, userID, nil); err != nil {
		zlog.Warn("emit purge event failed", zap.String("user_id", userID), zap.Error(err))
	}
	metrics.TenantPurges.Inc()
	zlog.Info("rag tenant purged", zap.String("user_id", userID), zap.Int64("ledger_rows", rows))
	return &respond.MessageRespond{Message: fmt.Sprintf(MsgUserDataDeleted, userID)}, nil
}

func (s *adminServiceImpl) DeleteCollection(ctx context.Context) (*respond.MessageRespond, error) {
	if err := s.vs.DropCollection(ctx); err != nil {
		if errors.Is(err, xerr.ErrCollectionDropped) {
			return nil, err
		}
		return nil, classify(ctx, xerr.Upstream("delete vector store collection", err))
	}
	if err := s.events.Emit(ctx, mq.EventCollectionDropped, "", nil); err != nil {
		zlog.Warn("emit drop event failed", zap.Error(err))
	}
	zlog.Warn("rag vector store collection deleted, restart required")
	// 集合已销毁；缓存清理失败要报出来，查询侧靠存储状态拦截旧答案
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			zlog.Error("invalidate answer cache failed", zap.Error(err))
			return nil, classify(ctx, xerr.Upstream("invalidate answer cache after collection delete", err))
		}
	}
	return &respond.MessageRespond{Message: MsgCollectionDeleted}, nil
}

func (s *adminServiceImpl) Health(ctx context.Context) *respond.HealthRespond {
	_ = ctx
	if ds, ok := s.vs.(dropState); ok && ds.Dropped() {
		return &respond.HealthRespond{Status: HealthStatusDropped}
	}
	return &respond.HealthRespond{Status: HealthStatusOK}
}
