package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	trader   *usecase.Trader
	engine   *usecase.Engine
	watchdog *usecase.Watchdog
	cfg      *config.Manager
	events   *events.Emitter
	archive  domain.ArchiveRepository
	hub      *Hub
	channel  string
	logger   *zap.Logger
}

func NewServer(
	port int,
	trader *usecase.Trader,
	engine *usecase.Engine,
	watchdog *usecase.Watchdog,
	cfg *config.Manager,
	em *events.Emitter,
	archive domain.ArchiveRepository,
	hub *Hub,
	channel string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		trader:   trader,
		engine:   engine,
		watchdog: watchdog,
		cfg:      cfg,
		events:   em,
		archive:  archive,
		hub:      hub,
		channel:  channel,
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
	// Signal ingest
	s.router.HandleFunc("POST /api/signal", s.handleSignal)
	s.router.HandleFunc("POST /api/heartbeat", s.handleHeartbeat)

	// Config
	s.router.HandleFunc("GET /api/config", s.handleGetConfig)
	s.router.HandleFunc("POST /api/config", s.handleUpdateConfig)

	// Book and history
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("GET /api/history", s.handleHistory)
	s.router.HandleFunc("POST /api/flatten", s.handleFlatten)

	// Feed metadata
	s.router.HandleFunc("GET /api/channels", s.handleChannels)

	// Status, events, metrics
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /ws", s.hub.HandleWS)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
