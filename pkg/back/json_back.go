package back

import (
	"net/http"

	"RAGBot/pkg/xerr"

	"github.com/gin-gonic/gin"
)

// ErrorBody 统一错误响应结构
type ErrorBody struct {
	Error string `json:"error"`
}

// Result 统一返回入口：成功直接输出 data，失败按错误类别映射状态码
func Result(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}
	Fail(c, err)
}

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Fail 错误返回
func Fail(c *gin.Context, err error) {
	e := xerr.From(err)
	c.AbortWithStatusJSON(e.Code, ErrorBody{Error: Message(e)})
}

// FailWith 错误返回并附带额外字段（如逐文件处理结果）
func FailWith(c *gin.Context, err error, extra gin.H) {
	e := xerr.From(err)
	body := gin.H{"error": Message(e)}
	for k, v := range extra {
		if k == "error" {
			continue
		}
		body[k] = v
	}
	c.AbortWithStatusJSON(e.Code, body)
}

// Error 按状态码与消息直接返回
func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorBody{Error: message})
}

// Message 内部错误不向外暴露底层原因
func Message(e *xerr.CodeError) string {
	if e == nil {
		return ""
	}
	if e.Code == xerr.InternalServerError {
		return e.Message
	}
	return e.Error()
}
