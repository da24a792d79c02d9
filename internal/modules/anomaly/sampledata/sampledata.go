// Package sampledata loads the bundled observation dataset served to API
// clients as a ready-made detection payload.
package sampledata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"weather-anomaly-server/internal/modules/anomaly/types"
)

// ErrNotFound is returned by Load when the dataset file does not exist.
var ErrNotFound = errors.New("test data file not found")

// Record is one sample observation plus its human-readable time.
type Record struct {
	types.Observation
	Datetime string `json:"datetime,omitempty"`
}

type Dataset struct {
	Records []Record
}

type TimeRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// Summary is the GET /test-data payload.
type Summary struct {
	Message           string    `json:"message"`
	TotalObservations int       `json:"total_observations"`
	Stations          []string  `json:"stations"`
	TimeRange         TimeRange `json:"time_range"`
	Observations      []Record  `json:"observations"`
}

// Load reads a JSON array of observations from path.
func Load(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return &Dataset{Records: records}, nil
}

// Stations returns the unique station ids, sorted.
func (d *Dataset) Stations() []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range d.Records {
		if _, ok := seen[r.StationID]; ok {
			continue
		}
		seen[r.StationID] = struct{}{}
		out = append(out, r.StationID)
	}
	sort.Strings(out)
	return out
}

// Observations returns the records stripped to detector input.
func (d *Dataset) Observations() []types.Observation {
	out := make([]types.Observation, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Observation
	}
	return out
}

func (d *Dataset) Summary() Summary {
	stations := d.Stations()

	// Time points per station is the size of the largest station.
	counts := make(map[string]int, len(stations))
	points := 0
	for _, r := range d.Records {
		counts[r.StationID]++
		if counts[r.StationID] > points {
			points = counts[r.StationID]
		}
	}

	var tr TimeRange
	if n := len(d.Records); n > 0 {
		start, end := d.Records[0].Datetime, d.Records[n-1].Datetime
		tr = TimeRange{Start: &start, End: &end}
	}

	return Summary{
		Message:           fmt.Sprintf("Sample test data for %d stations, %d time points each", len(stations), points),
		TotalObservations: len(d.Records),
		Stations:          stations,
		TimeRange:         tr,
		Observations:      d.Records,
	}
}
