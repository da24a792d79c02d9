package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"weather-anomaly-server/internal/metrics"
	"weather-anomaly-server/internal/modules/anomaly/repository"
	"weather-anomaly-server/internal/modules/anomaly/types"

	"github.com/google/uuid"
)

// AnomalyDetector scores a batch of observations.
type AnomalyDetector interface {
	Detect(observations []types.Observation, threshold float64) []types.AnomalyRecord
}

// AlertPublisher fans anomalies out to subscribers.
type AlertPublisher interface {
	PublishAnomaly(ctx context.Context, alert types.AnomalyAlert) error
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Service struct {
	detector   AnomalyDetector
	repository repository.RunRepository
	publisher  AlertPublisher
	loc        *time.Location
	logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the detection pipeline. repo and publisher may be nil, in
// which case runs are not stored and alerts are not sent.
func NewService(detector AnomalyDetector, repo repository.RunRepository, publisher AlertPublisher, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector:   detector,
		repository: repo,
		publisher:  publisher,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Detect validates req, scores it and reports the result. A *ValidationError
// means the detector never ran; a *DetectionError means it failed
// unexpectedly.
func (s *Service) Detect(ctx context.Context, req types.DetectionRequest) (types.DetectionResponse, error) {
	if err := validate(req); err != nil {
		metrics.DetectionRuns.WithLabelValues("rejected").Inc()
		return types.DetectionResponse{}, err
	}

	start := time.Now()
	anomalies, err := s.runDetector(req)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectionRuns.WithLabelValues("failed").Inc()
		s.logger.ErrorContext(ctx, "detection failed",
			"observations", len(req.Observations),
			"error", err,
		)
		return types.DetectionResponse{}, err
	}

	detectedAt := s.now()
	total := len(req.Observations)

	resp := types.DetectionResponse{
		RunID:             s.newID(),
		DetectionTime:     detectedAt.In(s.loc).Format(types.TimeLayout),
		TotalObservations: total,
		TotalAnomalies:    len(anomalies),
		Parameters: types.ParametersEcho{
			WindowLen: req.Parameters.WindowLen,
			Stride:    req.Parameters.Stride,
			Threshold: req.Parameters.Threshold,
			Variables: types.VariableNames(),
		},
		Anomalies: anomalies,
	}
	if len(anomalies) > 0 {
		resp.Status = types.StatusAnomaliesFound
		resp.Message = fmt.Sprintf("Detection completed. Found %d anomalie(s) in %d observations.", len(anomalies), total)
	} else {
		resp.Status = types.StatusNoAnomalies
		resp.Message = fmt.Sprintf("Detection completed. No anomalies detected in %d observations. All values are within normal range.", total)
	}

	metrics.DetectionRuns.WithLabelValues(resp.Status).Inc()
	metrics.ObservationsProcessed.Add(float64(total))
	for _, a := range anomalies {
		metrics.AnomaliesDetected.WithLabelValues(a.Variable).Inc()
	}

	s.logger.InfoContext(ctx, "detection completed",
		"run_id", resp.RunID,
		"observations", total,
		"anomalies", len(anomalies),
		"threshold", req.Parameters.Threshold,
	)

	s.persist(ctx, types.Run{
		ID:                resp.RunID,
		DetectedAt:        detectedAt,
		Status:            resp.Status,
		TotalObservations: total,
		TotalAnomalies:    len(anomalies),
		Parameters:        req.Parameters,
		Anomalies:         anomalies,
	})
	s.publish(ctx, resp.RunID, detectedAt, req.Parameters.Threshold, anomalies)

	return resp, nil
}

// runDetector turns a detector panic into an error.
func (s *Service) runDetector(req types.DetectionRequest) (anomalies []types.AnomalyRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			anomalies = nil
			err = &DetectionError{Cause: r}
		}
	}()
	anomalies = s.detector.Detect(req.Observations, req.Parameters.Threshold)
	if anomalies == nil {
		anomalies = []types.AnomalyRecord{}
	}
	return anomalies, nil
}

func (s *Service) persist(ctx context.Context, run types.Run) {
	if s.repository == nil {
		return
	}
	if err := s.repository.SaveRun(ctx, run); err != nil {
		metrics.RunsPersisted.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "failed to store detection run",
			"run_id", run.ID,
			"error", err,
		)
		return
	}
	metrics.RunsPersisted.WithLabelValues("ok").Inc()
}

func (s *Service) publish(ctx context.Context, runID string, detectedAt time.Time, threshold float64, anomalies []types.AnomalyRecord) {
	if s.publisher == nil {
		return
	}
	for _, a := range anomalies {
		alert := types.AnomalyAlert{
			RunID:            runID,
			StationID:        a.StationID,
			Variable:         a.Variable,
			AnomalyTimestamp: a.AnomalyTimestamp,
			AnomalyValue:     a.AnomalyValue,
			ZScore:           a.ZScore,
			Threshold:        threshold,
			DetectedAt:       detectedAt.UTC(),
		}
		if err := s.publisher.PublishAnomaly(ctx, alert); err != nil {
			metrics.AlertsPublished.WithLabelValues("error").Inc()
			s.logger.WarnContext(ctx, "failed to publish anomaly alert",
				"run_id", runID,
				"station_id", a.StationID,
				"variable", a.Variable,
				"error", err,
			)
			continue
		}
		metrics.AlertsPublished.WithLabelValues("ok").Inc()
	}
}

// ListRuns returns the most recent stored runs. limit is clamped to
// 1..MaxListLimit; zero means DefaultListLimit.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if s.repository == nil {
		return []types.Run{}, nil
	}
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 1:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repository.ListRuns(ctx, limit)
}

// GetRun returns one stored run with its anomalies, or
// repository.ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, id string) (types.Run, error) {
	if s.repository == nil {
		return types.Run{}, repository.ErrRunNotFound
	}
	return s.repository.GetRun(ctx, id)
}
