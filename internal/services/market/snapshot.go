package market

import (
	"time"

	"EstateDesk/internal/domain/models"
	xlogger "EstateDesk/pkg/logger"
)

// TakeSnapshot deep-copies the current state into history and prunes entries
// older than the retention window.
func (s *Simulator) TakeSnapshot() models.MarketSnapshot {
	now := s.cfg.Clock()

	s.mu.Lock()
	snap := models.MarketSnapshot{
		Timestamp:  now,
		MarketData: make(map[string]models.MarketData, len(s.data)),
		Tickers:    cloneTickers(s.tickers),
		Config:     s.configLocked(),
	}
	for id, d := range s.data {
		snap.MarketData[id] = *d
	}
	s.history = append(s.history, snap)

	cutoff := now.Add(-s.cfg.HistoryRetention)
	kept := s.history[:0]
	for _, h := range s.history {
		if h.Timestamp.After(cutoff) {
			kept = append(kept, h)
		}
	}
	s.history = kept
	s.mu.Unlock()

	return cloneSnapshot(snap)
}

// HistoricalSnapshots returns snapshots younger than within, oldest first.
// A non-positive window returns the whole history.
func (s *Simulator) HistoricalSnapshots(within time.Duration) []models.MarketSnapshot {
	now := s.cfg.Clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MarketSnapshot, 0, len(s.history))
	for _, h := range s.history {
		if within > 0 && !h.Timestamp.After(now.Add(-within)) {
			continue
		}
		out = append(out, cloneSnapshot(h))
	}
	return out
}

func (s *Simulator) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// RestoreSnapshot replaces prices and tickers with the snapshot's and
// renotifies price, ticker and config subscribers. The snapshot's config is
// informational only; volatility and frequency are left as they are.
func (s *Simulator) RestoreSnapshot(snapshot models.MarketSnapshot) {
	s.mu.Lock()
	s.data = make(map[string]*models.MarketData, len(snapshot.MarketData))
	kept := make([]string, 0, len(snapshot.MarketData))
	seen := make(map[string]bool, len(snapshot.MarketData))
	// preserve seed order for ids that survive, append the rest
	for _, id := range s.order {
		if d, ok := snapshot.MarketData[id]; ok {
			c := d
			s.data[id] = &c
			kept = append(kept, id)
			seen[id] = true
		}
	}
	for _, id := range sortedKeys(snapshot.MarketData) {
		if seen[id] {
			continue
		}
		c := snapshot.MarketData[id]
		s.data[id] = &c
		kept = append(kept, id)
	}
	s.order = kept
	s.tickers = cloneTickers(snapshot.Tickers)

	deliveries := make([]priceDelivery, 0, len(s.order))
	for _, id := range s.order {
		deliveries = append(deliveries, priceDelivery{
			data: *s.data[id],
			subs: append([]*subscriber[models.MarketData](nil), s.priceSubs[id]...),
		})
	}
	tickers := cloneTickers(s.tickers)
	tickerSubs := append([]*subscriber[[]models.MarketTicker](nil), s.tickerSubs...)
	s.mu.Unlock()

	s.logger.Info("market snapshot restored",
		xlogger.String("taken_at", snapshot.Timestamp.Format(time.RFC3339)),
		xlogger.Int("properties", len(deliveries)),
	)

	for _, dv := range deliveries {
		for _, sub := range dv.subs {
			sub.deliver(dv.data)
		}
	}
	for _, sub := range tickerSubs {
		sub.deliver(cloneTickers(tickers))
	}
	s.notifyConfig()
}

func cloneSnapshot(in models.MarketSnapshot) models.MarketSnapshot {
	out := in
	out.MarketData = make(map[string]models.MarketData, len(in.MarketData))
	for k, v := range in.MarketData {
		out.MarketData[k] = v
	}
	out.Tickers = cloneTickers(in.Tickers)
	return out
}
