package http

import (
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/service"
	"RAGBot/pkg/back"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryHandler 问答 HTTP Handler
type QueryHandler struct {
	querySvc service.QueryService
	timeouts Timeouts
}

func NewQueryHandler(querySvc service.QueryService, timeouts Timeouts) *QueryHandler {
	return &QueryHandler{querySvc: querySvc, timeouts: timeouts}
}

// Query 处理问答请求
//
// 路由: POST /query/
// 请求体: QueryRequest
// 响应体: QueryRespond
func (h *QueryHandler) Query(c *gin.Context) {
	var req request.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Warn("bind query request failed", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	ctx, cancel := withTimeout(c, h.timeouts.Query)
	defer cancel()

	data, err := h.querySvc.Query(ctx, req)
	if err != nil {
		zlog.Error("rag query failed", zap.String("user_id", req.UserID), zap.Error(err))
	}
	back.Result(c, data, err)
}
