package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-sysadmin/internal/boot"

	"go.uber.org/zap"
)

func main() {
	cfgPath, err := resolveConfigPath(os.Getenv)
	if err != nil {
		log.Fatalf("sysadmin: %v", err)
	}

	app, err := boot.InitApp(cfgPath)
	if err != nil {
		log.Fatalf("sysadmin: init app: %v", err)
	}
	meta := app.Config.AppMeta
	// service 字段已由 logging.New 注入
	l := app.Logger.With(zap.String("version", meta.Version), zap.String("env", meta.Env))

	srv := &http.Server{Addr: app.Config.HTTP.Addr, Handler: app.HTTP}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		l.Info("sysadmin_http_start", zap.String("addr", srv.Addr), zap.String("config", cfgPath),
			zap.Int("menus", app.Authz.MenuTree.Len()), zap.Int("depts", app.Authz.DeptTree.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("sysadmin_signal_received")
	case err := <-errCh:
		l.Error("sysadmin_http_failed", zap.Error(err))
	}

	// 先停止接收请求，再关闭授权同步与各依赖
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(app.Config.HTTP.ShutdownMS)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("sysadmin_http_shutdown", zap.Error(err))
	}
	app.Close()
	l.Info("sysadmin_stopped")
}
