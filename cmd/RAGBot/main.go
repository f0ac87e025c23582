package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	https_server "RAGBot/api/http"
	"RAGBot/internal/config"
	"RAGBot/internal/initial"
	"RAGBot/internal/modules/rag/infrastructure/loader"
	"RAGBot/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置，未知的 LLM 服务商等错误直接退出
	conf, err := config.Load(config.Path())
	if err != nil {
		zlog.Fatal("加载配置失败", zap.Error(err))
	}
	if err := zlog.Init(zlog.Options{
		LogPath:    conf.LogConfig.LogPath,
		Level:      conf.LogConfig.Level,
		MaxSizeMB:  conf.LogConfig.MaxSizeMB,
		MaxBackups: conf.LogConfig.MaxBackups,
		MaxAgeDays: conf.LogConfig.MaxAgeDays,
		Console:    conf.LogConfig.Console,
	}); err != nil {
		zlog.Fatal("初始化日志失败", zap.Error(err))
	}
	defer func() { _ = zlog.Sync() }()

	// unipdf 计量许可需要联网校验，失败时无法提取任何 PDF 文本
	if err := loader.SetLicenseKey(conf.RAGConfig.PDFLicenseKey); err != nil {
		zlog.Fatal("设置 PDF 许可失败", zap.Error(err))
	}

	// 2. 构造共享组件
	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	comp, err := initial.NewComponents(initCtx, conf)
	cancel()
	if err != nil {
		zlog.Fatal("初始化组件失败", zap.Error(err))
	}

	// 3. 启动 HTTP 服务
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           https_server.NewRouter(comp),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr), zap.Bool("tls", conf.MainConfig.TLSEnabled))
		var err error
		if conf.MainConfig.TLSEnabled {
			err = srv.ListenAndServeTLS(conf.MainConfig.CertFile, conf.MainConfig.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("服务器关闭超时", zap.Error(err))
	}
	if err := comp.Close(); err != nil {
		zlog.Error("释放组件失败", zap.Error(err))
	}
	zlog.Info("服务器已关闭")
}
