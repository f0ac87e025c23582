package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeouts 各类请求的处理时限，<=0 表示不限
type Timeouts struct {
	Ingest time.Duration
	Query  time.Duration
	Admin  time.Duration
}

func withTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), d)
}
