package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"github.com/smalltimedevs/aramid-trader/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	trades   domain.TradeRepository
	buyer    *usecase.BuyService
	seller   *usecase.SellService
	monitors *usecase.MonitorService
	logger   *zap.Logger
}

func NewServer(
	port int,
	trades domain.TradeRepository,
	buyer *usecase.BuyService,
	seller *usecase.SellService,
	monitors *usecase.MonitorService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		trades:   trades,
		buyer:    buyer,
		seller:   seller,
		monitors: monitors,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Trades
	s.router.HandleFunc("GET /api/trades/active", s.handleActiveTrades)
	s.router.HandleFunc("GET /api/trades/history", s.handleTradeHistory)
	s.router.HandleFunc("POST /api/trades/buy", s.handleBuy)
	s.router.HandleFunc("POST /api/trades/{id}/close", s.handleManualClose)

	// Monitors
	s.router.HandleFunc("GET /api/monitors", s.handleMonitors)

	// Ops
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
