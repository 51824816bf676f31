package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"khamriver-server/internal/config"
	db "khamriver-server/internal/db"
	httpapi "khamriver-server/internal/httpapi"
	"khamriver-server/internal/migrate"
	"khamriver-server/internal/modules/auth"
	"khamriver-server/internal/modules/waterquality"
	waterqualityviews "khamriver-server/internal/modules/waterquality/views"
	"khamriver-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.DBMaxOpenConns,
		"dbMaxIdleConns", cfg.DBMaxIdleConns,
		"dbConnMaxLifetime", cfg.DBConnMaxLifetime,
		"displayTZ", cfg.DisplayLocation.String(),
		"pageSize", cfg.PageSize,
		"sessionTTL", cfg.SessionTTL,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		slog.Info("migrations applied", "versions", applied)
	}

	if err := dbConn.PingContext(ctx); err != nil {
		return err
	}
	slog.Info("database connection successful")

	if err := waterqualityviews.LoadTemplates(); err != nil {
		return err
	}

	var publisher mqtt.ChangePublisher = mqtt.NopPublisher{}
	var mqttClient *mqtt.Client
	if cfg.MQTTBroker != "" {
		mqttClient = mqtt.NewClient(cfg, slog.Default().With("component", "mqtt"))
		// Short timeout so a missing broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing; change events are dropped until it connects)", "error", err)
		}
		publisher = mqtt.NewPublisher(mqttClient, cfg.MQTTTopicPrefix)
	} else {
		slog.Info("mqtt disabled (MQTT_BROKER not set)")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(dbConn, cfg.DBDriver),
	)
	metrics := httpapi.NewMetrics(registry)

	mux := httpapi.NewMux(dbConn, cfg.StaticDir, registry)
	authController := auth.RegisterFeature(mux, dbConn, cfg, publisher)
	waterquality.RegisterFeature(mux, dbConn, cfg, publisher, authController.RequireAdmin)

	srv := httpapi.NewServer(cfg, mux, metrics)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mqttClient != nil {
		slog.Info("mqtt disconnecting")
		mqttClient.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
