package http

import (
	"io"
	"mime/multipart"
	"strings"

	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/service"
	"RAGBot/pkg/back"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadHandler PDF 上传入库
type UploadHandler struct {
	ingestSvc service.IngestService
	timeouts  Timeouts
}

func NewUploadHandler(ingestSvc service.IngestService, timeouts Timeouts) *UploadHandler {
	return &UploadHandler{ingestSvc: ingestSvc, timeouts: timeouts}
}

// Upload 处理文件上传
//
// 路由: POST /upload/
// 请求体: multipart/form-data，字段 user_id 与 files（可多个）
// 响应体: UploadRespond；全部文件失败时返回首个失败的状态码，并附带 files
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		zlog.Warn("parse multipart form failed", zap.Error(err))
		back.Error(c, xerr.BadRequest, "invalid multipart form: "+err.Error())
		return
	}
	userID := ""
	if vs := form.Value["user_id"]; len(vs) > 0 {
		userID = vs[0]
	}
	if strings.TrimSpace(userID) == "" {
		back.Error(c, xerr.BadRequest, "user_id is required")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		back.Error(c, xerr.BadRequest, "at least one file is required")
		return
	}

	files := make([]request.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, toUploadFile(fh))
	}

	ctx, cancel := withTimeout(c, h.timeouts.Ingest)
	defer cancel()

	data, err := h.ingestSvc.Upload(ctx, userID, files)
	if err != nil && data != nil {
		back.FailWith(c, err, gin.H{"files": data.Files})
		return
	}
	back.Result(c, data, err)
}

func toUploadFile(fh *multipart.FileHeader) request.UploadFile {
	return request.UploadFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
