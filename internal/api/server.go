package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/service"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// PriceQueries is the read side used by the price routes.
type PriceQueries interface {
	Current(ctx context.Context) (map[token.Token]decimal.Decimal, error)
	Recent(ctx context.Context, limit int) ([]storage.PriceSample, error)
	LastDay(ctx context.Context) (map[token.Token][]storage.PriceSample, error)
	History(ctx context.Context, raw string, limit int) ([]storage.PriceSample, error)
}

// AlertCommands is the alert side used by the alert routes.
type AlertCommands interface {
	Create(ctx context.Context, in service.AlertInput) (storage.Alert, error)
	Pending(ctx context.Context) ([]storage.Alert, error)
	SendTestEmail(ctx context.Context, recipient string) error
}

// Options configure the HTTP listener.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes the REST surface.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router with all routes registered.
func NewServer(opts Options, prices PriceQueries, alerts AlertCommands, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	h := &handler{prices: prices, alerts: alerts, logger: logger}

	engine.GET("/", h.banner)
	engine.GET("/health", h.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/api", h.docs)

	engine.GET("/prices", h.currentPrices)
	engine.GET("/prices/:token", h.tokenHistory)
	engine.GET("/stored-prices", h.storedPrices)
	engine.GET("/hourly-prices", h.hourlyPrices)

	engine.POST("/price-alert", h.createAlert)
	engine.POST("/alerts", h.createAlert)
	engine.GET("/alerts", h.pendingAlerts)
	engine.POST("/test-email", h.testEmail)

	return &Server{opts: opts, engine: engine, logger: logger}
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
