package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// askTimeout bounds every request to the actor tree.
const askTimeout = 5 * time.Second

type Server struct {
	cfg         config.Config
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	controller  port.Controller
	registry    *prometheus.Registry
	metrics     *HTTPMetrics
	limiters    *limiterStore
	templates   *Templates
	logger      *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, controller port.Controller, registry *prometheus.Registry, logger *zap.Logger) (*http.Server, error) {
	newServer, err := newServer(cfg, rootContext, masterActor, controller, registry, logger)
	if err != nil {
		return nil, err
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", newServer.port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server, nil
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, controller port.Controller, registry *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	templates, err := NewTemplates()
	if err != nil {
		return nil, err
	}

	limiters, err := newLimiterStore(cfg.RateLimit, limiterStoreSize)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	metrics := NewHTTPMetrics()
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	return &Server{
		cfg:         cfg,
		port:        cfg.Port,
		httpLog:     cfg.HttpLog,
		rootContext: rootContext,
		masterActor: masterActor,
		controller:  controller,
		registry:    registry,
		metrics:     metrics,
		limiters:    limiters,
		templates:   templates,
		logger:      logger.With(zap.String("component", "server")),
	}, nil
}
