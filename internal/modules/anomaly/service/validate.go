package service

import "weather-anomaly-server/internal/modules/anomaly/types"

// validate checks parameter ranges before batch size so that an out-of-range
// parameter is reported as unprocessable even for an empty batch.
func validate(req types.DetectionRequest) error {
	p := req.Parameters
	if p.WindowLen < types.MinWindowLen || p.WindowLen > types.MaxWindowLen {
		return Unprocessable("window_len must be between %d and %d, got %d",
			types.MinWindowLen, types.MaxWindowLen, p.WindowLen)
	}
	if p.Stride < types.MinStride || p.Stride > types.MaxStride {
		return Unprocessable("stride must be between %d and %d, got %d",
			types.MinStride, types.MaxStride, p.Stride)
	}
	if !(p.Threshold >= types.MinThreshold && p.Threshold <= types.MaxThreshold) {
		return Unprocessable("threshold must be between %.1f and %.1f, got %v",
			types.MinThreshold, types.MaxThreshold, p.Threshold)
	}

	n := len(req.Observations)
	if n == 0 {
		return BadRequest("No observations provided")
	}
	if n < types.MinObservations {
		return BadRequest("Insufficient data: %d observations provided. Minimum %d required for statistical analysis.",
			n, types.MinObservations)
	}
	return nil
}
