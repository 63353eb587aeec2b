package models

import "time"

type InvestmentGoal string

const (
	GoalCashFlow     InvestmentGoal = "cash-flow"
	GoalAppreciation InvestmentGoal = "appreciation"
	GoalBalanced     InvestmentGoal = "balanced"
)

type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

type PriceRange struct {
	Min float64 `json:"min" validate:"gte=0"`
	Max float64 `json:"max" validate:"gtefield=Min"`
}

// UserPreferences drive recommendation scoring for a single user.
type UserPreferences struct {
	PriceRange        PriceRange     `json:"priceRange"`
	PreferredCities   []string       `json:"preferredCities"`
	MinBedrooms       int            `json:"minBedrooms" validate:"gte=0"`
	MinBathrooms      int            `json:"minBathrooms" validate:"gte=0"`
	PreferredFeatures []string       `json:"preferredFeatures"`
	InvestmentGoals   InvestmentGoal `json:"investmentGoals" validate:"oneof=cash-flow appreciation balanced"`
	RiskTolerance     RiskTolerance  `json:"riskTolerance" validate:"oneof=conservative moderate aggressive"`
}

// PrefersCity reports whether city is in the preferred list (exact match).
func (u UserPreferences) PrefersCity(city string) bool {
	for _, c := range u.PreferredCities {
		if c == city {
			return true
		}
	}
	return false
}

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Rank orders urgencies: high > medium > low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

type Category string

const (
	CategoryNewListing     Category = "new-listing"
	CategoryOffMarket      Category = "off-market"
	CategoryPriceDrop      Category = "price-drop"
	CategoryPortfolioMatch Category = "portfolio-match"
	CategoryLeaseExpiring  Category = "lease-expiring"
)

type PropertyRecommendation struct {
	Property Property `json:"property"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Urgency  Urgency  `json:"urgency"`
	Category Category `json:"category"`
}

type InsightType string

const (
	InsightRecommendation InsightType = "recommendation"
	InsightAlert          InsightType = "alert"
	InsightOpportunity    InsightType = "opportunity"
	InsightAdvice         InsightType = "advice"
)

// ConciergeInsight is a proactive suggestion surfaced on the client feed.
type ConciergeInsight struct {
	ID          string                 `json:"id"`
	Type        InsightType            `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Property    *Property              `json:"property,omitempty"`
	ActionLabel string                 `json:"actionLabel,omitempty"`
	Urgency     Urgency                `json:"urgency"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
