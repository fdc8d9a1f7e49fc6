package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/logger"
)

// 상태/리포팅 응답은 전부 소형 JSON 스냅샷이므로 타임아웃을 짧게 잡음.
// 느린 클라이언트가 엔진 프로세스의 커넥션을 오래 붙들지 못하게 함.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 90 * time.Second
)

// Server serves the engine status and reporting API
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// New builds the status API server around the given router
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: log.WithComponent("api"),
	}
}

// Start blocks serving requests until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Status API listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status api: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then stops accepting new ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping status API")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	return nil
}
