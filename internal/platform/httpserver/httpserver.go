package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shorturl.local/internal/platform/config"
)

// New 对外的业务 server（ADDR）
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.Addr, handler)
}

// NewAdmin 只给本机/内网的 /metrics、/readyz、pprof（ADMIN_ADDR）
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.AdminAddr, handler)
}

func newServer(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
	}
}

func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

// Serve 同时跑多个 server，直到 stopCtx 结束或其中一个出错；
// 任何一个出错都会让其余的优雅退出。返回第一个错误。
func Serve(stopCtx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	ctx, cancel := context.WithCancel(stopCtx)
	defer cancel()

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			errCh <- RunWithGracefulShutdownContext(srv, shutdownTimeout, ctx)
		}()
	}

	var first error
	for range servers {
		if err := <-errCh; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
