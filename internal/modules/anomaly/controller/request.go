package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"weather-anomaly-server/internal/modules/anomaly/service"
	"weather-anomaly-server/internal/modules/anomaly/types"
)

const (
	maxBodyBytes = 10 << 20

	defaultListLimit = 20
	maxListLimit     = 100
)

// Pointer fields tell a missing value apart from a zero value.
type observationPayload struct {
	StationID *string  `json:"station_id"`
	Timestamp *int64   `json:"timestamp"`
	TempOut   *float64 `json:"temp_out"`
	OutHum    *float64 `json:"out_hum"`
	WindSpeed *float64 `json:"wind_speed"`
	Bar       *float64 `json:"bar"`
	Rain      *float64 `json:"rain"`
}

type detectPayload struct {
	Observations *[]observationPayload `json:"observations"`
	WindowLen    *int                  `json:"window_len"`
	Stride       *int                  `json:"stride"`
	Threshold    *float64              `json:"threshold"`
}

// decodeDetectRequest turns a POST /detect body into a request with defaults
// applied. Malformed JSON is a bad request; a well-formed body with missing or
// mistyped fields is unprocessable.
func decodeDetectRequest(w http.ResponseWriter, r *http.Request) (types.DetectionRequest, error) {
	var p detectPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return types.DetectionRequest{}, service.Unprocessable("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		var sizeErr *http.MaxBytesError
		if errors.As(err, &sizeErr) {
			return types.DetectionRequest{}, service.BadRequest("request body exceeds %d bytes", sizeErr.Limit)
		}
		return types.DetectionRequest{}, service.BadRequest("invalid JSON body: %v", err)
	}

	if p.Observations == nil {
		return types.DetectionRequest{}, service.Unprocessable("observations: field required")
	}

	req := types.DetectionRequest{
		Observations: make([]types.Observation, len(*p.Observations)),
		Parameters:   types.DefaultParameters(),
	}
	for i, o := range *p.Observations {
		obs, err := o.toObservation(i)
		if err != nil {
			return types.DetectionRequest{}, err
		}
		req.Observations[i] = obs
	}

	if p.WindowLen != nil {
		req.Parameters.WindowLen = *p.WindowLen
	}
	if p.Stride != nil {
		req.Parameters.Stride = *p.Stride
	}
	if p.Threshold != nil {
		req.Parameters.Threshold = *p.Threshold
	}
	return req, nil
}

func (o observationPayload) toObservation(i int) (types.Observation, error) {
	missing := func(field string) error {
		return service.Unprocessable("observations[%d].%s: field required", i, field)
	}
	switch {
	case o.StationID == nil:
		return types.Observation{}, missing("station_id")
	case o.Timestamp == nil:
		return types.Observation{}, missing("timestamp")
	case o.TempOut == nil:
		return types.Observation{}, missing("temp_out")
	case o.OutHum == nil:
		return types.Observation{}, missing("out_hum")
	case o.WindSpeed == nil:
		return types.Observation{}, missing("wind_speed")
	case o.Bar == nil:
		return types.Observation{}, missing("bar")
	case o.Rain == nil:
		return types.Observation{}, missing("rain")
	}
	return types.Observation{
		StationID: *o.StationID,
		Timestamp: *o.Timestamp,
		TempOut:   *o.TempOut,
		OutHum:    *o.OutHum,
		WindSpeed: *o.WindSpeed,
		Bar:       *o.Bar,
		Rain:      *o.Rain,
	}, nil
}

func parseListQuery(r *http.Request) (limit int, err error) {
	limit = defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n < 1 || n > maxListLimit {
			return 0, fmt.Errorf("'limit' must be between 1 and %d", maxListLimit)
		}
		limit = n
	}
	return limit, nil
}
