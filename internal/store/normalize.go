package store

import "math"

// Score normalization per backend. Fusion only uses ranks; these functions
// exist so single-technique responses can report a score in [0,1]. Each is
// monotonic non-decreasing in its raw score.

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// SaturateScore maps an unbounded non-negative score to [0,1) as s/(s+k).
// A score equal to k maps to 0.5.
func SaturateScore(s, k float64) float64 {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	if math.IsInf(s, 1) {
		return 1
	}
	if k <= 0 {
		k = 1
	}
	return s / (s + k)
}

// CosineToUnit maps a cosine similarity in [-1,1] to [0,1].
func CosineToUnit(sim float64) float64 {
	return Clamp01((sim + 1) / 2)
}

// distanceToScore converts a graph distance to a similarity score.
// For cosine distance: score = 1 - distance/2 (distance ranges 0-2)
// For L2 distance: score = 1 / (1 + distance)
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default:
		return 1.0 - float64(distance)/2.0
	}
}
