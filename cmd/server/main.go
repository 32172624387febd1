package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/ingest"
	"github.com/afroash/hydro-monitor/internal/logging"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/server"
	"github.com/afroash/hydro-monitor/internal/simulation"
	"github.com/afroash/hydro-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Str("driver", cfg.Storage.Driver).
		Msg("Starting hydroponics backend")
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}

	pending := storage.NewPendingBuffer(cfg.Storage.PendingSize, true)
	if n, err := pending.Load(cfg.Storage.PendingPath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Storage.PendingPath).Msg("Failed to restore pending readings")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("Restored pending readings")
	}

	hub := server.NewHub(logger, cfg.Server.AllowedOrigins...)

	retentionCleaner := storage.NewRetentionCleaner(store, storage.RetentionCleanerConfig{
		RetentionDays: cfg.Storage.RetentionDays,
		CleanupPeriod: cfg.Storage.CleanupPeriod,
		OnPrune: func(int64) {
			hub.Publish(models.EventCleared, models.ClearedPayload{Collection: "leituras"})
		},
	}, logger)

	dbWriter := storage.NewDBWriter(store, storage.DBWriterConfig{
		BatchSize:   cfg.Storage.BatchSize,
		FlushPeriod: cfg.Storage.FlushPeriod,
		ChannelSize: cfg.Storage.ChannelSize,
		Fallback:    pending,
		OnFlush: func(count int) {
			hub.Publish(models.EventReadings, models.TickPayload{
				Leituras:  count,
				Pendentes: pending.Size(),
			})
		},
	}, logger)

	var subscriber *ingest.Subscriber
	if cfg.MQTT.Enabled {
		subscriber, err = ingest.NewSubscriber(cfg.MQTT, dbWriter, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create MQTT subscriber")
		}
		if err := subscriber.Start(); err != nil {
			// paho keeps retrying in the background
			logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT broker unreachable")
		}
	}

	sim := newSimulator(cfg.Simulation, logger)

	api := server.NewAPIHandler(server.APIConfig{
		Store:       store,
		Pending:     pending,
		Simulation:  sim,
		Events:      hub,
		DeviceKey:   cfg.Server.DeviceAPIKey,
		Version:     version,
		Subscribers: hub.Count,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Handler(hub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	if subscriber != nil {
		subscriber.Stop()
		logger.Info().Interface("stats", subscriber.Stats()).Msg("MQTT subscriber stopped")
	}
	dbWriter.Stop()
	logger.Info().Interface("stats", dbWriter.Stats()).Msg("DBWriter stopped")
	retentionCleaner.Stop()

	if err := pending.Save(cfg.Storage.PendingPath); err != nil {
		logger.Error().Err(err).Msg("Failed to persist pending readings")
	} else {
		logger.Info().Int("count", pending.Size()).Str("path", cfg.Storage.PendingPath).Msg("Pending readings persisted")
	}

	if err := sim.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to release simulation sources")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close store")
	}

	logger.Info().Msg("Server stopped")
}

func openStore(cfg config.StorageSettings, logger zerolog.Logger) (storage.Store, error) {
	if cfg.Driver == "memory" {
		return storage.NewMemoryStore(cfg.MemoryLimit), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, err
	}
	return storage.NewSQLiteStore(cfg.DBPath, logger)
}

// newSimulator samples randomly unless a DHT11 is configured, in which case
// temperatura/umidade sensors are read from the hardware.
func newSimulator(cfg config.SimulationSettings, logger zerolog.Logger) *simulation.Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	random := simulation.NewRandomSource(seed, cfg.InRangeRatio)

	if cfg.Hardware.Enabled {
		hw, err := simulation.NewDHT11Reader(cfg.Hardware.GPIOPin)
		if err != nil {
			logger.Warn().Err(err).Int("pin", cfg.Hardware.GPIOPin).Msg("DHT11 unavailable, using random source")
		} else {
			logger.Info().Int("pin", cfg.Hardware.GPIOPin).Msg("DHT11 attached")
			return simulation.NewSimulator(simulation.NewDHTSource(hw, random), random, logger)
		}
	}
	return simulation.NewSimulator(random, simulation.NewRandomSource(seed+1, cfg.InRangeRatio), logger)
}
