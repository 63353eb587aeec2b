package market

import (
	"sort"

	"EstateDesk/internal/domain/models"
)

// PortfolioValue sums simulated prices over properties. Untracked properties
// count at their listing price on both sides.
func (s *Simulator) PortfolioValue(properties []models.Property) models.PortfolioValue {
	pv := models.PortfolioValue{PropertyIDs: make([]string, 0, len(properties))}

	s.mu.RLock()
	for _, p := range properties {
		pv.PropertyIDs = append(pv.PropertyIDs, p.ID)
		if d, ok := s.data[p.ID]; ok {
			pv.CurrentValue += d.CurrentPrice
			pv.OriginalValue += d.OriginalPrice
			continue
		}
		pv.CurrentValue += p.Price
		pv.OriginalValue += p.Price
	}
	s.mu.RUnlock()

	pv.Change = pv.CurrentValue - pv.OriginalValue
	pv.ChangePercent = percentOf(pv.Change, pv.OriginalValue)
	switch {
	case pv.Change > 0:
		pv.Trend = models.TrendUp
	case pv.Change < 0:
		pv.Trend = models.TrendDown
	default:
		pv.Trend = models.TrendStable
	}
	return pv
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
