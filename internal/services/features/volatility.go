package features

import (
	"math"
	"time"

	"EstateDesk/internal/domain/models"
)

const (
	// PatternWindow is the number of index averages retained.
	PatternWindow = 20
	// MinPatternSamples is the number of averages needed before detection.
	MinPatternSamples = 10
	// compareSpan is the length of the recent and previous slices compared.
	compareSpan = 5
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev computes the population standard deviation
// sigma = sqrt(sum((v - mean)^2) / n). Fewer than two values yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	acc := 0.0
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// TickerAverage is the mean value of the synthetic indices.
func TickerAverage(tickers []models.MarketTicker) float64 {
	if len(tickers) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range tickers {
		sum += t.Value
	}
	return sum / float64(len(tickers))
}

// DetectPattern classifies the last ten values of series. The last five are
// compared with the five before them:
//
//	trend = mean(recent) - mean(previous)
//	vol   = stddev(recent)
//	dvol  = vol - stddev(previous)
//
// Rules are checked in order and the first match wins. It returns false when
// the series is too short or nothing matches.
func DetectPattern(series []float64, at time.Time) (models.VolatilityPattern, bool) {
	if len(series) < MinPatternSamples {
		return models.VolatilityPattern{}, false
	}

	recent := series[len(series)-compareSpan:]
	previous := series[len(series)-2*compareSpan : len(series)-compareSpan]

	recentAvg, previousAvg := Mean(recent), Mean(previous)
	vol := StdDev(recent)
	trend := recentAvg - previousAvg
	dvol := vol - StdDev(previous)

	p := models.VolatilityPattern{DetectedAt: at}
	switch {
	case trend > 2 && vol < 2:
		p.Type = models.PatternSurge
		p.Confidence = math.Min(95, 70+math.Abs(trend)*5)
		p.Description = "Strong upward momentum detected"
	case trend < -2 && vol < 2:
		p.Type = models.PatternCrash
		p.Confidence = math.Min(95, 70+math.Abs(trend)*5)
		p.Description = "Sharp downward movement detected"
	case vol > 3 && dvol > 1:
		p.Type = models.PatternOscillation
		p.Confidence = math.Min(90, 60+vol*8)
		p.Description = "High volatility and price swings"
	case previousAvg < 95 && recentAvg > 98 && trend > 0:
		p.Type = models.PatternRecovery
		p.Confidence = math.Min(85, 65+math.Abs(trend)*4)
		p.Description = "Recovery from previous decline"
	case vol < 1 && math.Abs(trend) < 0.5:
		p.Type = models.PatternSteady
		p.Confidence = 75
		p.Description = "Stable market conditions"
	default:
		return models.VolatilityPattern{}, false
	}
	return p, true
}
