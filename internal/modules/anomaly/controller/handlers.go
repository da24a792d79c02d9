package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"weather-anomaly-server/internal/modules/anomaly/repository"
	"weather-anomaly-server/internal/modules/anomaly/service"
	"weather-anomaly-server/internal/utils"
)

const apiVersion = "1.0.0"

type apiInfo struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

func (c *anomalyControllerImpl) handleInfo(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, apiInfo{
		Name:        "Real-Time Data Anomaly Detection API",
		Version:     apiVersion,
		Status:      "operational",
		Description: "Weather Time Series Anomaly Detection Service",
		Endpoints: map[string]string{
			"POST /detect":                "Detect anomalies in observation data",
			"GET /test-data":              "Get sample test data",
			"GET /api/v1/detections":      "List recent detection runs",
			"GET /api/v1/detections/{id}": "Get one detection run with its anomalies",
			"GET /healthz":                "Health check",
			"GET /metrics":                "Prometheus metrics",
		},
	})
}

func (c *anomalyControllerImpl) handleDetect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDetectRequest(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := c.service.Detect(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *anomalyControllerImpl) handleTestData(w http.ResponseWriter, _ *http.Request) {
	if c.dataset == nil {
		utils.WriteError(w, http.StatusNotFound, "Test data file not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.dataset.Summary())
}

func (c *anomalyControllerImpl) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseListQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := c.service.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("list detection runs failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to list detection runs")
		return
	}
	utils.WriteJSON(w, http.StatusOK, runs)
}

func (c *anomalyControllerImpl) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing run id")
		return
	}

	run, err := c.service.GetRun(r.Context(), id)
	if errors.Is(err, repository.ErrRunNotFound) {
		utils.WriteError(w, http.StatusNotFound, "detection run not found")
		return
	}
	if err != nil {
		slog.Error("get detection run failed", "run_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load detection run")
		return
	}
	utils.WriteJSON(w, http.StatusOK, run)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		status := http.StatusBadRequest
		if ve.Kind == service.KindUnprocessable {
			status = http.StatusUnprocessableEntity
		}
		utils.WriteError(w, status, ve.Message)
		return
	}

	var cause any = err
	var de *service.DetectionError
	if errors.As(err, &de) {
		cause = de.Cause
	}
	utils.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Detection failed: %v", cause))
}
