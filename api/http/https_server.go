package http

import (
	"fmt"
	"net/http"
	"time"

	"RAGBot/internal/initial"
	"RAGBot/internal/metrics"
	ragHandler "RAGBot/internal/modules/rag/interface/http"
	"RAGBot/pkg/back"
	"RAGBot/pkg/ssl"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter 挂载中间件与全部路由，handler 共享同一个 Components
func NewRouter(comp *initial.Components) *gin.Engine {
	conf := comp.Conf
	if !conf.MainConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	GE := gin.New()
	GE.Use(accessLog())
	GE.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		zlog.Error("panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered))
		back.Error(c, http.StatusInternalServerError, fmt.Sprintf("internal server error: %v", recovered))
	}))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"*"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.SecureHeaders(conf.MainConfig.Debug))
	if conf.MainConfig.TLSEnabled {
		GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}
	GE.Use(metrics.Middleware())

	timeouts := ragHandler.Timeouts{
		Ingest: conf.IngestTimeout(),
		Query:  conf.QueryTimeout(),
		Admin:  conf.AdminTimeout(),
	}
	uploadH := ragHandler.NewUploadHandler(comp.IngestSvc, timeouts)
	queryH := ragHandler.NewQueryHandler(comp.QuerySvc, timeouts)
	adminH := ragHandler.NewAdminHandler(comp.AdminSvc, timeouts)

	GE.POST("/upload/", uploadH.Upload)
	GE.POST("/query/", queryH.Query)
	GE.DELETE("/delete_user_data/", adminH.DeleteUserData)
	GE.DELETE("/admin/delete_collection/", adminH.DeleteCollection)
	GE.GET("/healthz", adminH.Health)
	GE.GET("/metrics", gin.WrapH(metrics.Handler()))

	GE.NoRoute(func(c *gin.Context) {
		back.Fail(c, xerr.NotFoundf("route not found: %s %s", c.Request.Method, c.Request.URL.Path))
	})
	return GE
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
