package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatlonely/dyntab/engine"
	"github.com/hatlonely/dyntab/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions HTTP 服务配置
type ServerOptions struct {
	Addr            string        `cfg:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `cfg:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `cfg:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `cfg:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// Server 动态表引擎的 HTTP 服务
type Server struct {
	options    *ServerOptions
	httpServer *http.Server
	logger     log.Logger
}

func NewServerWithOptions(options *ServerOptions, eng *engine.Engine, logger log.Logger) *Server {
	if options == nil {
		options = &ServerOptions{}
	}
	if options.Addr == "" {
		options.Addr = ":8080"
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = 30 * time.Second
	}
	if options.WriteTimeout == 0 {
		options.WriteTimeout = 60 * time.Second
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	NewHandler(eng, logger).RegisterRoutes(mux)

	metrics := NewMetrics()
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	return &Server{
		options: options,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         options.Addr,
			Handler:      metrics.Middleware(LoggingMiddleware(logger)(mux)),
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
		},
	}
}

// Run 启动服务并阻塞到收到退出信号
func (s *Server) Run() error {
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		s.logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown failed", "error", err)
		}
		close(done)
	}()

	s.logger.Info("server listening", "addr", s.options.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}

// Shutdown 主动优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
