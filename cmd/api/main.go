package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/db-tech/conbee2panel/internal/adapter/actor"
	"github.com/db-tech/conbee2panel/internal/adapter/rpc"
	"github.com/db-tech/conbee2panel/internal/adapter/telemetry"
	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/actor"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/server"
	"github.com/db-tech/conbee2panel/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 5 * time.Second

// shutdownOnSignal stops the HTTP server on SIGINT or SIGTERM and closes done
// once in-flight requests had their chance to finish.
func shutdownOnSignal(srv *http.Server, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutting down, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced http shutdown", zap.Error(err))
	}
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	slog.Info("Using", "config", cfg.Redacted())

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("conbee2panel stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(level zapcore.Level) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zap.Must(zapCfg.Build())
}

func run(cfg *config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rpcMetrics := rpc.NewMetrics()
	if err := rpcMetrics.Register(registry); err != nil {
		return fmt.Errorf("register rpc metrics: %w", err)
	}

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	root := as.Root
	es := &eventstream.EventStream{}

	panelCollector := telemetry.NewCollector(es)
	defer panelCollector.Close()
	if err := registry.Register(panelCollector); err != nil {
		return fmt.Errorf("register panel collector: %w", err)
	}

	controller := rpc.NewControllerClient(cfg.Controller, rpcMetrics, logger)
	defer func() {
		if err := controller.Close(); err != nil {
			logger.Warn("controller close", zap.Error(err))
		}
	}()

	master, err := root.SpawnNamed(pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, controller, es, mqttActorProvider(cfg, logger), logger)
	}), domain.ACTOR_ID_MASTER)
	if err != nil {
		return fmt.Errorf("spawn master: %w", err)
	}
	defer root.Stop(master)

	// the single controller connection, never reconnected
	if err := controller.Connect(context.Background(), actor.NewPanelListener(root, master)); err != nil {
		logger.Error("controller connection failed", zap.String("url", cfg.Controller.WebSocketURL()), zap.Error(err))
	}

	srv, err := server.NewServer(*cfg, root, master, controller, registry, logger)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go shutdownOnSignal(srv, logger, done)

	logger.Info("listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-done
	return nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => PANEL_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PANEL_PORT", port)
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	return config.Load(v)
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}
