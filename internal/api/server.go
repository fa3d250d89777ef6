package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/wdqms/internal/aggregate"
	"github.com/lox/wdqms/internal/store"
)

// DefaultAddr is where Run listens when no address is configured.
const DefaultAddr = ":8080"

// Server is the read-only HTTP surface over the aggregate views, the station
// catalog and the ingest audit log.
type Server struct {
	store  *store.Store
	views  *aggregate.Engine
	logger *slog.Logger
	addr   string
	router *gin.Engine
}

func New(st *store.Store, addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		store:  st,
		views:  aggregate.NewEngine(st),
		logger: logger,
		addr:   addr,
		router: router,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.GET("/synop-transmission-rate", s.handleHourly)
	api.GET("/monthly-transmission-rate", s.handleMonthly)
	api.GET("/yearly-transmission-rate", s.handleYearly)
	api.GET("/monthly-geom-transmission-rate", s.handleMonthlyGeo)
	api.GET("/stations", s.handleStations)
	api.GET("/ingest-runs", s.handleIngestRuns)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
