package anomaly

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"weather-anomaly-server/internal/modules/anomaly/controller"
	"weather-anomaly-server/internal/modules/anomaly/detector"
	"weather-anomaly-server/internal/modules/anomaly/repository"
	"weather-anomaly-server/internal/modules/anomaly/sampledata"
	"weather-anomaly-server/internal/modules/anomaly/service"
)

// Options carries the optional collaborators of the anomaly feature.
type Options struct {
	Location  *time.Location
	Publisher service.AlertPublisher
	Dataset   *sampledata.Dataset
	Logger    *slog.Logger
}

func RegisterFeature(mux *http.ServeMux, db *sql.DB, opts Options) {
	anomalyRepository := repository.NewRepository(db)
	anomalyService := service.NewService(
		detector.New(opts.Location),
		anomalyRepository,
		opts.Publisher,
		opts.Location,
		opts.Logger,
	)
	anomalyController := controller.NewAnomalyController(anomalyService, opts.Dataset)
	anomalyController.RegisterRoutes(mux)
}
