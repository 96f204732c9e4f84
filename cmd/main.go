package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/apikey"
	"system_bridge/internal/app"
	"system_bridge/internal/autostart"
	"system_bridge/internal/collector"
	"system_bridge/internal/config"
	"system_bridge/internal/logger"
	"system_bridge/internal/repository"
	"system_bridge/internal/repository/db"
	"system_bridge/internal/service"
	"system_bridge/internal/version"
)

const relayTimeout = 10 * time.Second

func main() {
	// load config.yml
	cfg, err := config.Load("configs", ".")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)
	defer func() { _ = log.Sync() }()
	if cfg.Log.Level != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// open DB
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, &http.Client{Timeout: relayTimeout})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := services.Settings.EnsureDefaults(ctx, defaultsFrom(cfg)); err != nil {
		log.Fatalw("failed to seed settings", "err", err)
	}

	registry := collector.NewRegistry()
	collector.RegisterDefaults(registry)
	runner := collector.NewPool(registry, cfg.Collector.Workers, cfg.Collector.Timeout)

	auto, err := autostart.New()
	if err != nil {
		log.Warnw("autostart unavailable", "err", err)
	}

	log.Infow("starting system bridge", "version", version.GetFullVersion(), "services", registry.Services())

	daemon := app.New(cfg, services, runner, apikey.NewProvider(), autostartOrNil(auto), log)
	if err := daemon.Run(ctx); err != nil {
		log.Errorw("system bridge stopped with error", "err", err)
		os.Exit(1)
	}
	log.Infow("system bridge stopped")
}

func defaultsFrom(cfg config.Config) service.Defaults {
	return service.Defaults{
		APIPort:          cfg.Network.APIPort,
		WSPort:           cfg.Network.WSPort,
		ObserverInterval: cfg.Observer.Interval,
		MQTTEnabled:      cfg.MQTT.Enabled,
		MQTTHost:         cfg.MQTT.Host,
		MQTTPort:         cfg.MQTT.Port,
		MQTTUsername:     cfg.MQTT.Username,
		MQTTPassword:     cfg.MQTT.Password,
	}
}

// a nil *Manager must not become a non-nil interface
func autostartOrNil(m *autostart.Manager) app.Applier {
	if m == nil {
		return nil
	}
	return m
}
