package controller

import (
	"context"
	"net/http"

	"weather-anomaly-server/internal/modules/anomaly/sampledata"
	"weather-anomaly-server/internal/modules/anomaly/types"
)

// DetectionService is the part of service.Service the handlers use.
type DetectionService interface {
	Detect(ctx context.Context, req types.DetectionRequest) (types.DetectionResponse, error)
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)
	GetRun(ctx context.Context, id string) (types.Run, error)
}

type AnomalyController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type anomalyControllerImpl struct {
	service DetectionService
	dataset *sampledata.Dataset
}

// NewAnomalyController builds the HTTP handlers. dataset may be nil when no
// sample file was found at startup.
func NewAnomalyController(service DetectionService, dataset *sampledata.Dataset) AnomalyController {
	return &anomalyControllerImpl{service: service, dataset: dataset}
}

func (c *anomalyControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleInfo)
	mux.HandleFunc("POST /detect", c.handleDetect)
	mux.HandleFunc("GET /test-data", c.handleTestData)
	mux.HandleFunc("GET /api/v1/detections", c.handleListRuns)
	mux.HandleFunc("GET /api/v1/detections/{id}", c.handleGetRun)
}
