// Package detector flags univariate point outliers in weather observations.
//
// Observations are grouped by station and every tracked variable is scored
// independently with a population Z-score over the station's whole batch.
package detector

import (
	"math"
	"sort"
	"time"

	"weather-anomaly-server/internal/modules/anomaly/types"
)

// minStdDev is the spread below which a variable is treated as constant.
const minStdDev = 1e-6

// Detector is stateless apart from the zone used to format timestamps, so a
// single value may be shared by concurrent requests.
type Detector struct {
	loc *time.Location
}

// New returns a Detector formatting timestamps in loc. A nil loc means UTC.
func New(loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{loc: loc}
}

// Detect scores observations and returns every reading whose absolute
// Z-score exceeds threshold. Records are ordered by station (first seen),
// then variable (types.Variables order), then timestamp.
//
// Stations with fewer than types.MinObservations readings are skipped, as are
// variables that are constant within a station.
func (d *Detector) Detect(observations []types.Observation, threshold float64) []types.AnomalyRecord {
	anomalies := []types.AnomalyRecord{}

	for _, group := range groupByStation(observations) {
		if len(group) < types.MinObservations {
			continue
		}

		// group is sorted, so the bounds are its ends.
		timeStart := d.format(group[0].Timestamp)
		timeEnd := d.format(group[len(group)-1].Timestamp)

		values := make([]float64, len(group))
		for _, variable := range types.Variables {
			for i, obs := range group {
				values[i], _ = obs.Value(variable)
			}

			mu := mean(values)
			std := populationStdDev(values, mu)
			if std < minStdDev {
				continue
			}

			for i, obs := range group {
				z := (values[i] - mu) / std
				// NaN from overflowing sums is never flagged.
				if !(math.Abs(z) > threshold) {
					continue
				}
				anomalies = append(anomalies, types.AnomalyRecord{
					TimeStart:        timeStart,
					TimeEnd:          timeEnd,
					StationID:        obs.StationID,
					Variable:         string(variable),
					AnomalyTimestamp: d.format(obs.Timestamp),
					AnomalyValue:     round2(values[i]),
					ZScore:           round2(z),
				})
			}
		}
	}

	return anomalies
}

func (d *Detector) format(ts int64) string {
	return time.Unix(ts, 0).In(d.loc).Format(types.TimeLayout)
}

// groupByStation partitions observations by station in first-seen order and
// stable-sorts each group by timestamp. The input slice is not modified.
func groupByStation(observations []types.Observation) [][]types.Observation {
	index := make(map[string]int)
	var groups [][]types.Observation
	for _, obs := range observations {
		i, ok := index[obs.StationID]
		if !ok {
			i = len(groups)
			index[obs.StationID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], obs)
	}

	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return g[a].Timestamp < g[b].Timestamp })
	}
	return groups
}
