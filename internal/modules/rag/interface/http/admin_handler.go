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

type AdminHandler struct {
	adminSvc service.AdminService
	timeouts Timeouts
}

func NewAdminHandler(adminSvc service.AdminService, timeouts Timeouts) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc, timeouts: timeouts}
}

// DeleteUserData DELETE /delete_user_data/
func (h *AdminHandler) DeleteUserData(c *gin.Context) {
	var req request.DeleteUserDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Warn("bind delete request failed", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	ctx, cancel := withTimeout(c, h.timeouts.Admin)
	defer cancel()

	data, err := h.adminSvc.DeleteUserData(ctx, req)
	back.Result(c, data, err)
}

// DeleteCollection DELETE /admin/delete_collection/
func (h *AdminHandler) DeleteCollection(c *gin.Context) {
	ctx, cancel := withTimeout(c, h.timeouts.Admin)
	defer cancel()

	data, err := h.adminSvc.DeleteCollection(ctx)
	if err != nil {
		zlog.Error("delete collection failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// Health GET /healthz
func (h *AdminHandler) Health(c *gin.Context) {
	back.Success(c, h.adminSvc.Health(c.Request.Context()))
}
