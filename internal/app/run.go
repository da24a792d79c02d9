package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"weather-anomaly-server/internal/config"
	db "weather-anomaly-server/internal/db"
	httpapi "weather-anomaly-server/internal/httpapi"
	"weather-anomaly-server/internal/migrate"
	anomaly "weather-anomaly-server/internal/modules/anomaly"
	"weather-anomaly-server/internal/modules/anomaly/sampledata"
	"weather-anomaly-server/internal/modules/anomaly/service"
	"weather-anomaly-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"timezone", cfg.Location.String(),
		"testDataPath", cfg.TestDataPath,
		"corsAllowedOrigins", cfg.CORSAllowedOrigins,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"sqliteLogQueries", cfg.SQLiteLogQueries,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
	)
	dbConn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}

	var ok int
	err = dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok)
	if err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	slog.Info("database connection successful")

	dataset, err := sampledata.Load(cfg.TestDataPath)
	if err != nil {
		// GET /test-data answers 404 until the file is provided and the server restarted.
		slog.Warn("sample data not loaded", "path", cfg.TestDataPath, "error", err)
	} else {
		slog.Info("sample data loaded", "path", cfg.TestDataPath, "observations", len(dataset.Records))
	}

	// A nil interface, not a nil *mqtt.Publisher, disables alerting.
	var alerts service.AlertPublisher
	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled() {
		publisher = mqtt.NewPublisher(cfg, slog.Default())
		alerts = publisher

		// Short timeout so a dead broker does not block startup; paho keeps
		// retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing, alerts dropped until connected)", "error", err)
		}
	} else {
		slog.Info("mqtt disabled (MQTT_BROKER not set)")
	}

	mux := httpapi.NewMux(dbConn)
	anomaly.RegisterFeature(mux, dbConn, anomaly.Options{
		Location:  cfg.Location,
		Publisher: alerts,
		Dataset:   dataset,
		Logger:    slog.Default(),
	})

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if publisher != nil {
			publisher.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if publisher != nil {
		slog.Info("mqtt disconnecting")
		publisher.Disconnect()
	}

	return ctx.Err()
}
