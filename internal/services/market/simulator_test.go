package market

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"EstateDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqRandom struct {
	mu   sync.Mutex
	vals []float64
	i    int
}

func constRandom(v float64) *seqRandom { return &seqRandom{vals: []float64{v}} }

func (r *seqRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testProperties = []models.Property{
	{ID: "p1", City: "Brooklyn", State: "NY", Price: 1_000_000},
	{ID: "p2", City: "Hoboken", State: "NJ", Price: 500_000},
}

// newManualSimulator returns a simulator whose loops never fire on their own;
// tests drive ticks directly.
func newManualSimulator(t *testing.T, r RandomSource, opts ...SimulatorOption) (*Simulator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []SimulatorOption{
		WithBaseFrequency(time.Hour),
		WithTickerInterval(time.Hour),
		WithRandomSource(r),
		WithClock(clock.Now),
	}
	s := NewSimulator(append(base, opts...)...)
	s.Initialize(testProperties)
	t.Cleanup(s.Cleanup)
	return s, clock
}

func TestInitializeSeedsState(t *testing.T) {
	s, clock := newManualSimulator(t, constRandom(0.5))

	all := s.AllMarketData()
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].PropertyID)
	assert.Equal(t, "p2", all[1].PropertyID)
	for i, d := range all {
		assert.Equal(t, testProperties[i].Price, d.CurrentPrice)
		assert.Equal(t, testProperties[i].Price, d.OriginalPrice)
		assert.Zero(t, d.PriceChange)
		assert.Equal(t, models.TrendStable, d.Trend)
		assert.Equal(t, 100.0, d.MarketIndex)
		assert.Equal(t, clock.Now(), d.LastUpdate)
	}

	tickers := s.Tickers()
	require.Len(t, tickers, 4)
	symbols := []string{}
	for _, tk := range tickers {
		symbols = append(symbols, tk.Symbol)
		assert.Equal(t, 100.0, tk.Value)
		assert.Equal(t, models.TrendStable, tk.Trend)
	}
	assert.Equal(t, []string{"REX", "LUX", "MET", "COM"}, symbols)

	cfg := s.Config()
	assert.False(t, cfg.IsPaused)
	assert.Equal(t, DefaultVolatility, cfg.Volatility)
	assert.Equal(t, 1.0, cfg.Multiplier)
}

func TestDefaultUpdateFrequency(t *testing.T) {
	s := NewSimulator()
	s.Initialize(testProperties)
	defer s.Cleanup()

	assert.EqualValues(t, 3000, s.Config().UpdateFrequency)
}

func TestPriceTickArithmetic(t *testing.T) {
	// rf = (0.75 - 0.5) * 2 = 0.5
	s, _ := newManualSimulator(t, constRandom(0.75))

	s.tickPrices()

	d, ok := s.MarketData("p1")
	require.True(t, ok)
	assert.InDelta(t, 1_010_000, d.CurrentPrice, 1e-6)
	assert.InDelta(t, 10_000, d.PriceChange, 1e-6)
	assert.InDelta(t, 1.0, d.PriceChangePercent, 1e-9)
	assert.InDelta(t, 10_000, d.Velocity, 1e-6)
	assert.Equal(t, models.TrendUp, d.Trend)
}

func TestPriceTickStableWithinBand(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.5))

	s.tickPrices()

	d, _ := s.MarketData("p2")
	assert.Equal(t, 500_000.0, d.CurrentPrice)
	assert.Equal(t, models.TrendStable, d.Trend)
}

func TestPricesStayClampedAfterManyTicks(t *testing.T) {
	tests := []struct {
		name   string
		random float64
		factor float64
	}{
		{name: "upward pressure", random: 0.999, factor: PriceCeiling},
		{name: "downward pressure", random: 0, factor: PriceFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newManualSimulator(t, constRandom(tt.random), WithVolatility(MaxVolatility))
			for i := 0; i < 200; i++ {
				s.tickPrices()
				for _, d := range s.AllMarketData() {
					require.GreaterOrEqual(t, d.CurrentPrice, d.OriginalPrice*PriceFloor-1e-6)
					require.LessOrEqual(t, d.CurrentPrice, d.OriginalPrice*PriceCeiling+1e-6)
				}
			}
			for _, d := range s.AllMarketData() {
				assert.InDelta(t, d.OriginalPrice*tt.factor, d.CurrentPrice, 1e-6)
			}
		})
	}
}

func TestPricesClampedUnderRandomWalk(t *testing.T) {
	s, _ := newManualSimulator(t, newLockedRand(42), WithVolatility(MaxVolatility))
	for i := 0; i < 1000; i++ {
		s.tickPrices()
	}
	for _, d := range s.AllMarketData() {
		assert.GreaterOrEqual(t, d.CurrentPrice, d.OriginalPrice*PriceFloor-1e-6)
		assert.LessOrEqual(t, d.CurrentPrice, d.OriginalPrice*PriceCeiling+1e-6)
	}
}

func TestTickerTick(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	s.tickTickers()

	for _, tk := range s.Tickers() {
		assert.InDelta(t, 100.25, tk.Value, 1e-9)
		assert.InDelta(t, 0.25, tk.Change, 1e-9)
		assert.Equal(t, tk.Change, tk.ChangePercent)
		assert.Equal(t, models.TrendUp, tk.Trend)
	}

	// the next price tick picks up REX influence
	s.tickPrices()
	d, _ := s.MarketData("p1")
	assert.InDelta(t, 100+0.25*IndexInfluence, d.MarketIndex, 1e-9)
}

func TestTickersClamped(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0))
	for i := 0; i < 500; i++ {
		s.tickTickers()
	}
	for _, tk := range s.Tickers() {
		assert.Equal(t, TickerFloor, tk.Value)
		assert.Equal(t, -20.0, tk.ChangePercent)
		assert.Equal(t, models.TrendDown, tk.Trend)
	}

	s2, _ := newManualSimulator(t, constRandom(0.9999))
	for i := 0; i < 500; i++ {
		s2.tickTickers()
	}
	for _, tk := range s2.Tickers() {
		assert.Equal(t, TickerCeiling, tk.Value)
	}
}

func TestSubscribeImmediateAndFanOut(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	var a, b []models.MarketData
	subA := s.Subscribe("p1", func(d models.MarketData) { a = append(a, d) })
	defer subA.Close()
	subB := s.Subscribe("p1", func(d models.MarketData) { b = append(b, d) })
	defer subB.Close()

	require.Len(t, a, 1, "immediate delivery of current state")
	require.Len(t, b, 1)
	assert.Equal(t, 1_000_000.0, a[0].CurrentPrice)

	s.tickPrices()
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.InDelta(t, 1_010_000, a[1].CurrentPrice, 1e-6)
}

func TestSubscribeUnknownProperty(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	calls := 0
	sub := s.Subscribe("missing", func(models.MarketData) { calls++ })
	s.tickPrices()
	sub.Close()

	assert.Zero(t, calls)
	_, ok := s.MarketData("missing")
	assert.False(t, ok)
}

func TestNoDeliveryAfterClose(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	var prices, tickers int
	priceSub := s.Subscribe("p1", func(models.MarketData) { prices++ })
	tickerSub := s.SubscribeTickers(func([]models.MarketTicker) { tickers++ })
	require.Equal(t, 1, prices)
	require.Equal(t, 1, tickers)

	priceSub.Close()
	priceSub.Close()
	tickerSub.Close()

	for i := 0; i < 5; i++ {
		s.tickPrices()
		s.tickTickers()
	}
	assert.Equal(t, 1, prices)
	assert.Equal(t, 1, tickers)
}

func TestCallbacksReceiveCopies(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.5))

	sub := s.SubscribeTickers(func(ts []models.MarketTicker) {
		ts[0].Value = -1
	})
	defer sub.Close()
	s.tickTickers()

	assert.Equal(t, 100.0, s.Tickers()[0].Value)
}

func TestCallbackMayReadSimulator(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	var seen []float64
	sub := s.Subscribe("p1", func(d models.MarketData) {
		current, _ := s.MarketData(d.PropertyID)
		seen = append(seen, current.CurrentPrice)
		_ = s.Config()
	})
	defer sub.Close()

	s.tickPrices()
	require.Len(t, seen, 2)
	assert.InDelta(t, 1_010_000, seen[1], 1e-6)
}

func TestSubscribeTickersBeforeInitialize(t *testing.T) {
	s := NewSimulator(WithBaseFrequency(time.Hour), WithTickerInterval(time.Hour))
	defer s.Cleanup()

	calls := 0
	sub := s.SubscribeTickers(func([]models.MarketTicker) { calls++ })
	defer sub.Close()
	assert.Zero(t, calls)

	s.Initialize(testProperties)
	s.tickTickers()
	assert.Equal(t, 1, calls)
}

func TestPauseResumeNotifyConfig(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.5))

	var configs []models.MarketConfig
	sub := s.SubscribeConfig(func(c models.MarketConfig) { configs = append(configs, c) })
	defer sub.Close()
	require.Len(t, configs, 1)
	assert.False(t, configs[0].IsPaused)

	s.Pause()
	s.Pause()
	assert.True(t, s.Config().IsPaused)
	require.Len(t, configs, 3)
	assert.True(t, configs[2].IsPaused)

	s.Resume()
	s.Resume()
	assert.False(t, s.Config().IsPaused)
	require.Len(t, configs, 5)
	assert.False(t, configs[4].IsPaused)
}

func TestResumeBeforeInitializeIsNoop(t *testing.T) {
	s := NewSimulator()
	calls := 0
	sub := s.SubscribeConfig(func(models.MarketConfig) { calls++ })
	defer sub.Close()

	s.Resume()
	assert.True(t, s.Config().IsPaused)
	assert.Equal(t, 1, calls)
}

func TestSetVolatilityClamps(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.5))

	s.SetVolatility(5)
	assert.Equal(t, MaxVolatility, s.Config().Volatility)
	s.SetVolatility(0)
	assert.Equal(t, MinVolatility, s.Config().Volatility)
	s.SetVolatility(0.05)
	assert.Equal(t, 0.05, s.Config().Volatility)
}

func TestSetUpdateFrequency(t *testing.T) {
	s := NewSimulator(WithTickerInterval(time.Hour), WithRandomSource(constRandom(0.5)))
	s.Initialize(testProperties)
	defer s.Cleanup()

	notified := 0
	sub := s.SubscribeConfig(func(models.MarketConfig) { notified++ })
	defer sub.Close()

	s.SetUpdateFrequency(2)
	cfg := s.Config()
	assert.EqualValues(t, 6000, cfg.UpdateFrequency)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.False(t, cfg.IsPaused)
	assert.Equal(t, 2, notified, "one immediate plus one change")

	s.SetUpdateFrequency(100)
	assert.Equal(t, MaxMultiplier, s.Config().Multiplier)
	s.SetUpdateFrequency(0)
	assert.Equal(t, MinMultiplier, s.Config().Multiplier)
	assert.EqualValues(t, 300, s.Config().UpdateFrequency)

	s.Pause()
	require.True(t, s.Config().IsPaused)
	s.SetUpdateFrequency(1)
	assert.False(t, s.Config().IsPaused, "a frequency change resumes the loops")
	assert.EqualValues(t, 3000, s.Config().UpdateFrequency)
}

func TestSetUpdateFrequencyBeforeInitialize(t *testing.T) {
	s := NewSimulator(WithTickerInterval(time.Hour))
	defer s.Cleanup()

	s.SetUpdateFrequency(2)
	assert.Equal(t, 2.0, s.Config().Multiplier)
	assert.True(t, s.Config().IsPaused, "nothing runs before Initialize")
}

func TestLoopsRun(t *testing.T) {
	s := NewSimulator(
		WithBaseFrequency(5*time.Millisecond),
		WithTickerInterval(5*time.Millisecond),
		WithRandomSource(constRandom(0.75)),
	)
	s.Initialize(testProperties)
	defer s.Cleanup()

	var prices, tickers atomic.Int32
	ps := s.Subscribe("p1", func(models.MarketData) { prices.Add(1) })
	defer ps.Close()
	ts := s.SubscribeTickers(func([]models.MarketTicker) { tickers.Add(1) })
	defer ts.Close()

	require.Eventually(t, func() bool {
		return prices.Load() > 3 && tickers.Load() > 3
	}, 2*time.Second, 5*time.Millisecond)

	s.Pause()
	p := prices.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, p, prices.Load(), "no ticks while paused")
}

func TestCleanupClearsEverything(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))

	calls := 0
	s.Subscribe("p1", func(models.MarketData) { calls++ })
	s.TakeSnapshot()

	s.Cleanup()

	assert.Empty(t, s.AllMarketData())
	assert.Empty(t, s.Tickers())
	assert.Empty(t, s.HistoricalSnapshots(0))
	assert.True(t, s.Config().IsPaused)

	s.tickPrices()
	assert.Equal(t, 1, calls)

	s.Resume()
	assert.True(t, s.Config().IsPaused, "resume after cleanup does nothing")
}

func TestPortfolioValue(t *testing.T) {
	s, _ := newManualSimulator(t, constRandom(0.75))
	s.tickPrices()

	pv := s.PortfolioValue([]models.Property{
		testProperties[0],
		{ID: "untracked", Price: 250_000},
	})

	assert.Equal(t, []string{"p1", "untracked"}, pv.PropertyIDs)
	assert.InDelta(t, 1_260_000, pv.CurrentValue, 1e-6)
	assert.InDelta(t, 1_250_000, pv.OriginalValue, 1e-6)
	assert.InDelta(t, 10_000, pv.Change, 1e-6)
	assert.InDelta(t, 0.8, pv.ChangePercent, 1e-9)
	assert.Equal(t, models.TrendUp, pv.Trend)

	empty := s.PortfolioValue(nil)
	assert.Zero(t, empty.ChangePercent)
	assert.Equal(t, models.TrendStable, empty.Trend)
}
