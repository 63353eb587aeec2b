package features

import (
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
)

// PatternHistoryWindow bounds how long pattern transitions are remembered.
const PatternHistoryWindow = 5 * time.Minute

// PatternAnalyzer feeds ticker averages into DetectPattern. It keeps the
// current pattern and the recent transitions between pattern types.
type PatternAnalyzer struct {
	mu      sync.RWMutex
	now     func() time.Time
	values  []float64
	current *models.VolatilityPattern
	history []models.VolatilityPattern
}

type AnalyzerOption func(*PatternAnalyzer)

func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *PatternAnalyzer) {
		if now != nil {
			a.now = now
		}
	}
}

func NewPatternAnalyzer(opts ...AnalyzerOption) *PatternAnalyzer {
	a := &PatternAnalyzer{now: time.Now, values: make([]float64, 0, PatternWindow)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe records the average of tickers. It has the signature of a market
// ticker subscriber.
func (a *PatternAnalyzer) Observe(tickers []models.MarketTicker) {
	if len(tickers) == 0 {
		return
	}
	a.Add(TickerAverage(tickers))
}

// Add appends one value and re-runs detection.
func (a *PatternAnalyzer) Add(v float64) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.values = append(a.values, v)
	if len(a.values) > PatternWindow {
		a.values = append(a.values[:0], a.values[len(a.values)-PatternWindow:]...)
	}
	if len(a.values) < MinPatternSamples {
		return
	}

	p, ok := DetectPattern(a.values, now)
	if !ok {
		a.current = nil
		return
	}
	a.current = &p

	cutoff := now.Add(-PatternHistoryWindow)
	kept := a.history[:0]
	for _, h := range a.history {
		if h.DetectedAt.After(cutoff) {
			kept = append(kept, h)
		}
	}
	a.history = kept
	if len(a.history) == 0 || a.history[len(a.history)-1].Type != p.Type {
		a.history = append(a.history, p)
	}
}

// Current returns the pattern detected on the latest value, if any.
func (a *PatternAnalyzer) Current() (models.VolatilityPattern, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return models.VolatilityPattern{}, false
	}
	return *a.current, true
}

// History returns pattern transitions from the last five minutes, oldest
// first.
func (a *PatternAnalyzer) History() []models.VolatilityPattern {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.VolatilityPattern, len(a.history))
	copy(out, a.history)
	return out
}

// Values returns the retained averages, oldest first.
func (a *PatternAnalyzer) Values() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]float64, len(a.values))
	copy(out, a.values)
	return out
}
