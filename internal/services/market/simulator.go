package market

import (
	"math"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/service"
	xlogger "EstateDesk/pkg/logger"
)

var _ service.MarketFeed = (*Simulator)(nil)

var defaultTickers = []models.MarketTicker{
	{Symbol: "REX", Name: "Real Estate Index"},
	{Symbol: "LUX", Name: "Luxury Market"},
	{Symbol: "MET", Name: "Metro Properties"},
	{Symbol: "COM", Name: "Commercial RE"},
}

type subscriber[T any] struct {
	id     uint64
	fn     func(T)
	mu     sync.Mutex
	active bool
}

func (s *subscriber[T]) deliver(v T) {
	s.mu.Lock()
	ok := s.active
	s.mu.Unlock()
	if ok {
		s.fn(v)
	}
}

func (s *subscriber[T]) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// loop is one periodic goroutine with its own stop channel.
type loop struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func startLoop(interval time.Duration, tick func()) *loop {
	l := &loop{interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(l.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				tick()
			}
		}
	}()
	return l
}

func (l *loop) halt() {
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done
}

// Simulator owns the simulated prices and indices and fans changes out to
// subscribers. Callbacks run on the loop goroutines after the lock is
// released, so they may read from the simulator. They must not call Pause,
// Resume, SetUpdateFrequency or Cleanup, which wait for the loops to exit.
type Simulator struct {
	cfg    SimulatorConfig
	logger *xlogger.Logger

	// serialises control operations that start or stop loops
	control sync.Mutex

	mu          sync.RWMutex
	initialized bool
	order       []string
	data        map[string]*models.MarketData
	tickers     []models.MarketTicker
	volatility  float64
	multiplier  float64
	history     []models.MarketSnapshot
	priceLoop   *loop
	tickerLoop  *loop

	nextID     uint64
	priceSubs  map[string][]*subscriber[models.MarketData]
	tickerSubs []*subscriber[[]models.MarketTicker]
	configSubs []*subscriber[models.MarketConfig]
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	cfg := defaultSimulatorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Simulator{
		cfg:        cfg,
		logger:     cfg.Logger.With(xlogger.String("component", "market_simulator")),
		data:       make(map[string]*models.MarketData),
		volatility: cfg.Volatility,
		multiplier: cfg.Multiplier,
		priceSubs:  make(map[string][]*subscriber[models.MarketData]),
	}
}

// Initialize seeds prices at each listing price, resets the tickers to 100
// and starts both loops. Existing subscribers are kept.
func (s *Simulator) Initialize(properties []models.Property) {
	s.control.Lock()
	defer s.control.Unlock()

	s.stopLoops()

	now := s.cfg.Clock()
	s.mu.Lock()
	s.data = make(map[string]*models.MarketData, len(properties))
	s.order = s.order[:0]
	for _, p := range properties {
		if _, dup := s.data[p.ID]; !dup {
			s.order = append(s.order, p.ID)
		}
		s.data[p.ID] = &models.MarketData{
			PropertyID:    p.ID,
			CurrentPrice:  p.Price,
			OriginalPrice: p.Price,
			Trend:         models.TrendStable,
			LastUpdate:    now,
			MarketIndex:   TickerBase,
		}
	}
	s.tickers = freshTickers()
	s.initialized = true
	s.mu.Unlock()

	s.startLoops()

	s.logger.Info("market simulator initialized",
		xlogger.Int("properties", len(s.order)),
		xlogger.Float64("volatility", s.cfg.Volatility),
		xlogger.Duration("price_interval_ms", s.priceInterval()),
	)
}

func freshTickers() []models.MarketTicker {
	out := make([]models.MarketTicker, len(defaultTickers))
	for i, t := range defaultTickers {
		t.Value = TickerBase
		t.Trend = models.TrendStable
		out[i] = t
	}
	return out
}

func (s *Simulator) priceInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priceIntervalLocked()
}

func (s *Simulator) priceIntervalLocked() time.Duration {
	return time.Duration(float64(s.cfg.BaseFrequency) * s.multiplier)
}

// startLoops starts whichever loop is not running. Caller holds control.
func (s *Simulator) startLoops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priceLoop == nil {
		s.priceLoop = startLoop(s.priceIntervalLocked(), s.tickPrices)
	}
	if s.tickerLoop == nil {
		s.tickerLoop = startLoop(s.cfg.TickerInterval, s.tickTickers)
	}
}

// stopLoops halts both loops and waits for them. Caller holds control.
func (s *Simulator) stopLoops() {
	s.mu.Lock()
	price, ticker := s.priceLoop, s.tickerLoop
	s.priceLoop, s.tickerLoop = nil, nil
	s.mu.Unlock()

	price.halt()
	ticker.halt()
}

type priceDelivery struct {
	data models.MarketData
	subs []*subscriber[models.MarketData]
}

func (s *Simulator) tickPrices() {
	start := time.Now()
	now := s.cfg.Clock()

	s.mu.Lock()
	influence := 0.0
	if len(s.tickers) > 0 {
		influence = s.tickers[0].ChangePercent * IndexInfluence
	}
	deliveries := make([]priceDelivery, 0, len(s.order))
	for _, id := range s.order {
		d, ok := s.data[id]
		if !ok {
			continue
		}
		rf := (s.cfg.Random.Float64() - 0.5) * 2
		previous := d.CurrentPrice
		next := d.CurrentPrice + d.OriginalPrice*s.volatility*rf
		next = math.Max(next, d.OriginalPrice*PriceFloor)
		next = math.Min(next, d.OriginalPrice*PriceCeiling)

		d.CurrentPrice = next
		d.PriceChange = next - d.OriginalPrice
		d.PriceChangePercent = percentOf(d.PriceChange, d.OriginalPrice)
		d.Velocity = next - previous
		d.Trend = trendOf(d.PriceChangePercent, d.Velocity > 0)
		d.LastUpdate = now
		d.MarketIndex = TickerBase + influence

		deliveries = append(deliveries, priceDelivery{
			data: *d,
			subs: append([]*subscriber[models.MarketData](nil), s.priceSubs[id]...),
		})
	}
	s.mu.Unlock()

	for _, dv := range deliveries {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordLastPrice(dv.data.PropertyID, dv.data.CurrentPrice)
		}
		for _, sub := range dv.subs {
			sub.deliver(dv.data)
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordLatency("market_price_tick", time.Since(start).Seconds())
	}
}

func (s *Simulator) tickTickers() {
	s.mu.Lock()
	for i := range s.tickers {
		t := &s.tickers[i]
		rf := (s.cfg.Random.Float64() - 0.5) * 2
		previous := t.Value
		next := math.Max(t.Value+t.Value*TickerStep*rf, TickerFloor)
		next = math.Min(next, TickerCeiling)

		t.Value = next
		t.Change = next - TickerBase
		t.ChangePercent = t.Change
		t.Trend = trendOf(t.ChangePercent, next > previous)
	}
	tickers := cloneTickers(s.tickers)
	subs := append([]*subscriber[[]models.MarketTicker](nil), s.tickerSubs...)
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		for _, t := range tickers {
			s.cfg.Metrics.RecordLastPrice(t.Symbol, t.Value)
		}
	}
	for _, sub := range subs {
		sub.deliver(cloneTickers(tickers))
	}
}

func trendOf(pct float64, rising bool) models.Trend {
	switch {
	case math.Abs(pct) < StableBand:
		return models.TrendStable
	case rising:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}

func percentOf(change, base float64) float64 {
	if base == 0 {
		return 0
	}
	return change / base * 100
}

func cloneTickers(in []models.MarketTicker) []models.MarketTicker {
	if in == nil {
		return nil
	}
	out := make([]models.MarketTicker, len(in))
	copy(out, in)
	return out
}

// --- subscriptions ---

// Subscribe registers fn for price updates of propertyID. fn is called
// immediately when the property is tracked.
func (s *Simulator) Subscribe(propertyID string, fn func(models.MarketData)) *service.Subscription {
	s.mu.Lock()
	s.nextID++
	sub := &subscriber[models.MarketData]{id: s.nextID, fn: fn, active: true}
	s.priceSubs[propertyID] = append(s.priceSubs[propertyID], sub)
	var current *models.MarketData
	if d, ok := s.data[propertyID]; ok {
		c := *d
		current = &c
	}
	s.mu.Unlock()

	if current != nil {
		sub.deliver(*current)
	}

	return service.NewSubscription(func() {
		sub.deactivate()
		s.mu.Lock()
		s.priceSubs[propertyID] = removeSubscriber(s.priceSubs[propertyID], sub.id)
		if len(s.priceSubs[propertyID]) == 0 {
			delete(s.priceSubs, propertyID)
		}
		s.mu.Unlock()
	})
}

// SubscribeTickers registers fn for index updates. fn is called immediately
// once the simulator has been initialized.
func (s *Simulator) SubscribeTickers(fn func([]models.MarketTicker)) *service.Subscription {
	s.mu.Lock()
	s.nextID++
	sub := &subscriber[[]models.MarketTicker]{id: s.nextID, fn: fn, active: true}
	s.tickerSubs = append(s.tickerSubs, sub)
	current := cloneTickers(s.tickers)
	s.mu.Unlock()

	if current != nil {
		sub.deliver(current)
	}

	return service.NewSubscription(func() {
		sub.deactivate()
		s.mu.Lock()
		s.tickerSubs = removeSubscriber(s.tickerSubs, sub.id)
		s.mu.Unlock()
	})
}

// SubscribeConfig registers fn for config changes and calls it immediately.
func (s *Simulator) SubscribeConfig(fn func(models.MarketConfig)) *service.Subscription {
	s.mu.Lock()
	s.nextID++
	sub := &subscriber[models.MarketConfig]{id: s.nextID, fn: fn, active: true}
	s.configSubs = append(s.configSubs, sub)
	current := s.configLocked()
	s.mu.Unlock()

	sub.deliver(current)

	return service.NewSubscription(func() {
		sub.deactivate()
		s.mu.Lock()
		s.configSubs = removeSubscriber(s.configSubs, sub.id)
		s.mu.Unlock()
	})
}

func removeSubscriber[T any](subs []*subscriber[T], id uint64) []*subscriber[T] {
	out := subs[:0]
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	for i := len(out); i < len(subs); i++ {
		subs[i] = nil
	}
	return out
}

func (s *Simulator) notifyConfig() {
	s.mu.RLock()
	cfg := s.configLocked()
	subs := append([]*subscriber[models.MarketConfig](nil), s.configSubs...)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(cfg)
	}
}

// --- controls ---

// Pause stops both loops. Prices and tickers hold their values.
func (s *Simulator) Pause() {
	s.control.Lock()
	s.stopLoops()
	s.control.Unlock()

	s.logger.Info("market simulator paused")
	s.notifyConfig()
}

// Resume restarts stopped loops. It does nothing before Initialize or after
// Cleanup.
func (s *Simulator) Resume() {
	s.control.Lock()
	s.mu.RLock()
	ready := s.initialized
	s.mu.RUnlock()
	if !ready {
		s.control.Unlock()
		return
	}
	s.startLoops()
	s.control.Unlock()

	s.logger.Info("market simulator resumed")
	s.notifyConfig()
}

// SetVolatility clamps level to [0.001, 0.15]. It takes effect on the next
// price tick.
func (s *Simulator) SetVolatility(level float64) {
	if math.IsNaN(level) {
		return
	}
	s.mu.Lock()
	s.volatility = clamp(level, MinVolatility, MaxVolatility)
	v := s.volatility
	s.mu.Unlock()

	s.logger.Info("volatility updated", xlogger.Float64("volatility", v))
	s.notifyConfig()
}

// SetUpdateFrequency clamps the multiplier to [0.1, 10], then pauses and
// resumes so both loops restart on the new schedule. A paused simulator is
// therefore running afterwards.
func (s *Simulator) SetUpdateFrequency(multiplier float64) {
	if math.IsNaN(multiplier) {
		return
	}
	s.control.Lock()
	s.mu.Lock()
	s.multiplier = clamp(multiplier, MinMultiplier, MaxMultiplier)
	ready := s.initialized
	s.mu.Unlock()

	s.stopLoops()
	if ready {
		s.startLoops()
	}
	s.control.Unlock()

	s.logger.Info("update frequency changed", xlogger.Duration("price_interval_ms", s.priceInterval()))
	s.notifyConfig()
}

// Cleanup stops both loops and drops all data, subscribers and history.
func (s *Simulator) Cleanup() {
	s.control.Lock()
	defer s.control.Unlock()

	s.stopLoops()

	s.mu.Lock()
	for _, subs := range s.priceSubs {
		for _, sub := range subs {
			sub.deactivate()
		}
	}
	for _, sub := range s.tickerSubs {
		sub.deactivate()
	}
	for _, sub := range s.configSubs {
		sub.deactivate()
	}
	s.priceSubs = make(map[string][]*subscriber[models.MarketData])
	s.tickerSubs = nil
	s.configSubs = nil
	s.data = make(map[string]*models.MarketData)
	s.order = nil
	s.tickers = nil
	s.history = nil
	s.initialized = false
	s.mu.Unlock()

	s.logger.Info("market simulator cleaned up")
}

// --- reads ---

func (s *Simulator) MarketData(propertyID string) (models.MarketData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[propertyID]
	if !ok {
		return models.MarketData{}, false
	}
	return *d, true
}

// AllMarketData returns every tracked property in seed order.
func (s *Simulator) AllMarketData() []models.MarketData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MarketData, 0, len(s.order))
	for _, id := range s.order {
		if d, ok := s.data[id]; ok {
			out = append(out, *d)
		}
	}
	return out
}

func (s *Simulator) Tickers() []models.MarketTicker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTickers(s.tickers)
}

func (s *Simulator) Config() models.MarketConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configLocked()
}

func (s *Simulator) configLocked() models.MarketConfig {
	return models.MarketConfig{
		Volatility:      s.volatility,
		UpdateFrequency: s.priceIntervalLocked().Milliseconds(),
		Multiplier:      s.multiplier,
		IsPaused:        s.priceLoop == nil,
	}
}

// Close stops the loops. It satisfies io.Closer for the application shutdown
// sequence.
func (s *Simulator) Close() error {
	s.control.Lock()
	s.stopLoops()
	s.control.Unlock()
	return nil
}
