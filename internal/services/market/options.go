package market

import (
	"math/rand"
	"sync"
	"time"

	"EstateDesk/internal/domain/repository"
	xlogger "EstateDesk/pkg/logger"
)

const (
	DefaultBaseFrequency    = 3 * time.Second
	DefaultTickerInterval   = 2 * time.Second
	DefaultVolatility       = 0.02
	DefaultMultiplier       = 1.0
	DefaultHistoryRetention = time.Hour

	MinVolatility = 0.001
	MaxVolatility = 0.15
	MinMultiplier = 0.1
	MaxMultiplier = 10.0

	// Property prices stay within these multiples of the listing price.
	PriceFloor   = 0.85
	PriceCeiling = 1.25

	TickerBase    = 100.0
	TickerFloor   = 80.0
	TickerCeiling = 120.0
	TickerStep    = 0.005

	// marketIndex = 100 + influence * REX change percent
	IndexInfluence = 0.3

	// Below this absolute percent change a series is stable.
	StableBand = 0.1
)

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

// lockedRand makes a *rand.Rand safe for the two loop goroutines.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

type SimulatorConfig struct {
	BaseFrequency    time.Duration
	TickerInterval   time.Duration
	Volatility       float64
	Multiplier       float64
	HistoryRetention time.Duration
	Random           RandomSource
	Clock            func() time.Time
	Logger           *xlogger.Logger
	Metrics          repository.Metrics
}

type SimulatorOption func(*SimulatorConfig)

func WithBaseFrequency(d time.Duration) SimulatorOption {
	return func(c *SimulatorConfig) {
		if d > 0 {
			c.BaseFrequency = d
		}
	}
}

func WithTickerInterval(d time.Duration) SimulatorOption {
	return func(c *SimulatorConfig) {
		if d > 0 {
			c.TickerInterval = d
		}
	}
}

func WithVolatility(v float64) SimulatorOption {
	return func(c *SimulatorConfig) { c.Volatility = clamp(v, MinVolatility, MaxVolatility) }
}

func WithMultiplier(m float64) SimulatorOption {
	return func(c *SimulatorConfig) { c.Multiplier = clamp(m, MinMultiplier, MaxMultiplier) }
}

func WithHistoryRetention(d time.Duration) SimulatorOption {
	return func(c *SimulatorConfig) {
		if d > 0 {
			c.HistoryRetention = d
		}
	}
}

func WithRandomSource(r RandomSource) SimulatorOption {
	return func(c *SimulatorConfig) {
		if r != nil {
			c.Random = r
		}
	}
}

// WithSeed makes the random walk reproducible. Zero keeps the time-based seed.
func WithSeed(seed int64) SimulatorOption {
	return func(c *SimulatorConfig) {
		if seed != 0 {
			c.Random = newLockedRand(seed)
		}
	}
}

func WithClock(now func() time.Time) SimulatorOption {
	return func(c *SimulatorConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}

func WithLogger(l *xlogger.Logger) SimulatorOption {
	return func(c *SimulatorConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithMetrics(m repository.Metrics) SimulatorOption {
	return func(c *SimulatorConfig) { c.Metrics = m }
}

func defaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		BaseFrequency:    DefaultBaseFrequency,
		TickerInterval:   DefaultTickerInterval,
		Volatility:       DefaultVolatility,
		Multiplier:       DefaultMultiplier,
		HistoryRetention: DefaultHistoryRetention,
		Random:           newLockedRand(time.Now().UnixNano()),
		Clock:            time.Now,
		Logger:           xlogger.Nop(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
