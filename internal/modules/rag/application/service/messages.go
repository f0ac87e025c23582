package service

import (
	"context"
	"errors"

	"RAGBot/pkg/xerr"
)

// 对外返回的固定提示
const (
	MsgFilesProcessed    = "Files processed and vectorstore updated successfully."
	MsgFilesPartial      = "Some files could not be processed, see per-file status."
	MsgUserDataDeleted   = "All documents for user_id '%s' have been deleted."
	MsgCollectionDeleted = "Vectorstore collection deleted. Please restart the application."
	HealthStatusOK       = "ok"
	HealthStatusDropped  = "collection_deleted"
	unknownSource        = "Unknown"
	unknownPage          = "N/A"
)

// classify 保留已分类错误；未分类错误在请求上下文已结束时归为超时/取消
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return xerr.From(errors.Join(ctxErr, err))
	}
	return err
}
