package recommendation

import (
	"fmt"

	"EstateDesk/internal/domain/models"
)

const (
	MaxScore = 100
	// MinRecommendScore drops weaker candidates from recommendations.
	MinRecommendScore  = 50
	MaxRecommendations = 5
	MaxReasons         = 3

	HighUrgencyScore   = 80
	MediumUrgencyScore = 60
)

// CalculatePropertyScore awards points for each preference the property
// satisfies and caps the total at 100. Flags are read as given, so callers
// pass analyzed properties.
func CalculatePropertyScore(p models.Property, prefs models.UserPreferences, portfolio []models.Property) int {
	score := 0

	switch {
	case p.Price >= prefs.PriceRange.Min && p.Price <= prefs.PriceRange.Max:
		score += 30
	case p.Price < prefs.PriceRange.Min:
		score += 15
	}

	if prefs.PrefersCity(p.City) {
		score += 25
	}
	if p.Bedrooms >= prefs.MinBedrooms {
		score += 15
	}
	if p.Bathrooms >= prefs.MinBathrooms {
		score += 10
	}

	switch {
	case prefs.InvestmentGoals == models.GoalCashFlow && p.CapRate > 5:
		score += 20
	case prefs.InvestmentGoals == models.GoalAppreciation && p.ROI > 8:
		score += 20
	}

	if p.IsCurated {
		score += 15
	}
	if !p.HasSeverity(models.SeverityUrgent) {
		score += 10
	}

	// only moderate investors get the diversification bonus
	if len(portfolio) > 0 && prefs.RiskTolerance == models.RiskModerate && !holdsCity(portfolio, p.City) {
		score += 15
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}

func holdsCity(portfolio []models.Property, city string) bool {
	for _, h := range portfolio {
		if h.City == city {
			return true
		}
	}
	return false
}

// GenerateRecommendationReasons lists up to three human readable reasons in
// a fixed priority order.
func GenerateRecommendationReasons(p models.Property, prefs models.UserPreferences, score int) []string {
	reasons := make([]string, 0, MaxReasons)
	add := func(r string) {
		if len(reasons) < MaxReasons {
			reasons = append(reasons, r)
		}
	}

	if prefs.PrefersCity(p.City) {
		add("Located in your preferred area: " + p.City)
	}
	if p.CapRate > 5 {
		add(fmt.Sprintf("Strong cap rate: %.1f%%", p.CapRate))
	}
	if p.ROI > 8 {
		add(fmt.Sprintf("High ROI potential: %.1f%%", p.ROI))
	}
	if p.IsCurated {
		add("Verified and curated by our team")
	}
	if p.YearBuilt > 2000 {
		add("Modern construction with fewer compliance concerns")
	}
	if score >= HighUrgencyScore {
		add("Exceptional match for your investment profile")
	}
	return reasons
}

func urgencyFor(score int) models.Urgency {
	switch {
	case score >= HighUrgencyScore:
		return models.UrgencyHigh
	case score >= MediumUrgencyScore:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// DefaultPreferences is used for users who never saved any.
func DefaultPreferences() models.UserPreferences {
	return models.UserPreferences{
		PriceRange:        models.PriceRange{Min: 500_000, Max: 5_000_000},
		PreferredCities:   []string{"Brooklyn", "Manhattan", "Queens"},
		MinBedrooms:       2,
		MinBathrooms:      2,
		PreferredFeatures: []string{"high ceilings", "gallery space", "modern finishes"},
		InvestmentGoals:   models.GoalBalanced,
		RiskTolerance:     models.RiskModerate,
	}
}
