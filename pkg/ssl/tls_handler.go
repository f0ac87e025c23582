package ssl

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// TlsHandler 将 HTTP 请求重定向到 HTTPS，仅在启用 TLS 时挂载
func TlsHandler(host string, port int) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect: true,
		SSLHost:     host + ":" + strconv.Itoa(port),
	})
	return wrap(secureMiddleware)
}

// SecureHeaders 基础安全响应头
func SecureHeaders(isDevelopment bool) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      isDevelopment,
	})
	return wrap(secureMiddleware)
}

func wrap(s *secure.Secure) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process 出错时已写入响应（重定向），不再继续处理链
		if err := s.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		// 重定向后 secure 已写状态码
		if status := c.Writer.Status(); status > 300 && status < 399 {
			c.Abort()
			return
		}
		c.Next()
	}
}
