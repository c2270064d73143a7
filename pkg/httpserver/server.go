// pkg/httpserver/server.go

// Пакет httpserver отдаёт операционные эндпоинты сервиса: метрики
// Prometheus, liveness и readiness. Бизнес-трафика здесь нет.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// ReadyChecker возвращает nil, когда сервис готов принимать нагрузку.
// Контекст приходит из самого readiness-запроса.
type ReadyChecker func(ctx context.Context) error

// HTTPServer запускается один раз и живёт до отмены контекста.
type HTTPServer interface {
	Start(ctx context.Context) error
}

// Config задаёт адрес, таймауты и пути операционных эндпоинтов.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
	HealthzPath     string
	ReadyzPath      string
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthzPath == "" {
		c.HealthzPath = "/healthz"
	}
	if c.ReadyzPath == "" {
		c.ReadyzPath = "/readyz"
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("httpserver: Addr is required")
	}
	return nil
}

type server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

// New собирает сервер с эндпоинтами metrics/healthz/readyz.
func New(cfg Config, check ReadyChecker, log *logger.Logger) (HTTPServer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc(cfg.HealthzPath, handleHealthz)
	mux.HandleFunc(cfg.ReadyzPath, handleReadyz(check))

	return &server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log.Named("http"),
	}, nil
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz дергает проверку на каждый запрос: готовность может
// деградировать и восстанавливаться в течение жизни процесса.
func handleReadyz(check ReadyChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Start блокирует до отмены контекста или фатальной ошибки listen,
// затем выполняет graceful shutdown с отдельным таймаутом.
func (s *server) Start(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- fmt.Errorf("httpserver: listen: %w", err)
		}
		close(listenErr)
	}()

	var cause error
	select {
	case <-ctx.Done():
		cause = ctx.Err()
	case err := <-listenErr:
		cause = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	s.log.Info("server stopped")
	return cause
}
