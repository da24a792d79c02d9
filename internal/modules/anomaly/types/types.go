package types

import "time"

// TimeLayout is the wire format for every timestamp the API reports.
const TimeLayout = "2006-01-02 15:04:05"

// Variable names a tracked measurement. The string value is the JSON field name.
type Variable string

const (
	TempOut   Variable = "temp_out"
	OutHum    Variable = "out_hum"
	WindSpeed Variable = "wind_speed"
	Bar       Variable = "bar"
	Rain      Variable = "rain"
)

// Variables lists the tracked measurements in scoring order.
var Variables = []Variable{TempOut, OutHum, WindSpeed, Bar, Rain}

// VariableNames returns Variables as plain strings.
func VariableNames() []string {
	out := make([]string, len(Variables))
	for i, v := range Variables {
		out[i] = string(v)
	}
	return out
}

// Observation is one reading from a station.
type Observation struct {
	StationID string  `json:"station_id"`
	Timestamp int64   `json:"timestamp"`
	TempOut   float64 `json:"temp_out"`
	OutHum    float64 `json:"out_hum"`
	WindSpeed float64 `json:"wind_speed"`
	Bar       float64 `json:"bar"`
	Rain      float64 `json:"rain"`
}

// Value returns the measurement for v. ok is false for an unknown variable.
func (o Observation) Value(v Variable) (value float64, ok bool) {
	switch v {
	case TempOut:
		return o.TempOut, true
	case OutHum:
		return o.OutHum, true
	case WindSpeed:
		return o.WindSpeed, true
	case Bar:
		return o.Bar, true
	case Rain:
		return o.Rain, true
	}
	return 0, false
}

const (
	DefaultWindowLen = 60
	DefaultStride    = 18
	DefaultThreshold = 2.5

	MinWindowLen = 3
	MaxWindowLen = 200
	MinStride    = 1
	MaxStride    = 100
	MinThreshold = 1.0
	MaxThreshold = 5.0

	// MinObservations is the smallest batch accepted for detection, and the
	// smallest station group that is scored.
	MinObservations = 3
)

// DetectionParameters holds the tuning knobs of a detection run.
// WindowLen and Stride are validated and echoed but do not affect scoring:
// each station's whole batch is scored as a single window.
type DetectionParameters struct {
	WindowLen int     `json:"window_len"`
	Stride    int     `json:"stride"`
	Threshold float64 `json:"threshold"`
}

func DefaultParameters() DetectionParameters {
	return DetectionParameters{
		WindowLen: DefaultWindowLen,
		Stride:    DefaultStride,
		Threshold: DefaultThreshold,
	}
}

// AnomalyRecord describes one flagged reading.
type AnomalyRecord struct {
	TimeStart        string  `json:"time_start"`
	TimeEnd          string  `json:"time_end"`
	StationID        string  `json:"station_id"`
	Variable         string  `json:"variable"`
	AnomalyTimestamp string  `json:"anomaly_timestamp"`
	AnomalyValue     float64 `json:"anomaly_value"`
	ZScore           float64 `json:"z_score"`
}

// DetectionRequest is a validated detection call.
type DetectionRequest struct {
	Observations []Observation
	Parameters   DetectionParameters
}

const (
	StatusAnomaliesFound = "anomalies_found"
	StatusNoAnomalies    = "no_anomalies"
)

// ParametersEcho is the parameters block of a detection response.
type ParametersEcho struct {
	WindowLen int      `json:"window_len"`
	Stride    int      `json:"stride"`
	Threshold float64  `json:"threshold"`
	Variables []string `json:"variables"`
}

type DetectionResponse struct {
	RunID             string          `json:"run_id"`
	Status            string          `json:"status"`
	Message           string          `json:"message"`
	DetectionTime     string          `json:"detection_time"`
	TotalObservations int             `json:"total_observations"`
	TotalAnomalies    int             `json:"total_anomalies"`
	Parameters        ParametersEcho  `json:"parameters"`
	Anomalies         []AnomalyRecord `json:"anomalies"`
}

// Run is a detection stored in the audit log.
type Run struct {
	ID                string              `json:"id"`
	DetectedAt        time.Time           `json:"detected_at"`
	Status            string              `json:"status"`
	TotalObservations int                 `json:"total_observations"`
	TotalAnomalies    int                 `json:"total_anomalies"`
	Parameters        DetectionParameters `json:"parameters"`
	Anomalies         []AnomalyRecord     `json:"anomalies,omitempty"`
}

// AnomalyAlert is the payload published for each anomaly.
type AnomalyAlert struct {
	RunID            string    `json:"run_id"`
	StationID        string    `json:"station_id"`
	Variable         string    `json:"variable"`
	AnomalyTimestamp string    `json:"anomaly_timestamp"`
	AnomalyValue     float64   `json:"anomaly_value"`
	ZScore           float64   `json:"z_score"`
	Threshold        float64   `json:"threshold"`
	DetectedAt       time.Time `json:"detected_at"`
}
