// Package confidence provides confidence score math utilities.
package confidence

import "math"

// Default blending parameters.
const (
	DefaultZThreshold = 2.25
	DefaultBonus      = 0.25
)

// Blend adds bonus to a rule severity when the z-score magnitude reaches
// threshold, capped at 1. An absent z-score never earns the bonus.
func Blend(base float64, z *float64, threshold, bonus float64) float64 {
	score := base
	if Extreme(z, threshold) {
		score += bonus
	}
	return Clamp(score)
}

// Extreme reports whether |z| meets threshold.
func Extreme(z *float64, threshold float64) bool {
	return z != nil && math.Abs(*z) >= threshold
}

// Clamp ensures confidence is in valid range [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Round2 rounds a score to two decimals for display.
func Round2(score float64) float64 {
	return math.Round(score*100) / 100
}
