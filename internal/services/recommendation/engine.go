package recommendation

import (
	"fmt"
	"sort"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/services/compliance"
	"EstateDesk/pkg/util"
)

const (
	// InsightLeaseDays is the horizon for lease alerts on held properties.
	InsightLeaseDays = 60
	// RentUpsideRatio flags held properties whose projected rent beats the
	// current rent by more than 15%.
	RentUpsideRatio = 1.15
	// DiversifyAbove is the portfolio value that triggers diversification advice.
	DiversifyAbove = 5_000_000
)

// Engine produces recommendations and concierge insights. Lease horizons are
// measured with the evaluator's clock.
type Engine struct {
	evaluator *compliance.Evaluator
}

func NewEngine(evaluator *compliance.Evaluator) *Engine {
	if evaluator == nil {
		evaluator = compliance.NewEvaluator()
	}
	return &Engine{evaluator: evaluator}
}

// GeneratePropertyRecommendations scores every property, drops those under
// 50 and returns the best five, highest score first. Ties keep input order.
func (e *Engine) GeneratePropertyRecommendations(properties []models.Property, prefs models.UserPreferences, portfolio []models.Property) []models.PropertyRecommendation {
	recs := make([]models.PropertyRecommendation, 0, len(properties))
	for _, p := range properties {
		score := CalculatePropertyScore(p, prefs, portfolio)
		if score < MinRecommendScore {
			continue
		}
		recs = append(recs, models.PropertyRecommendation{
			Property: p,
			Score:    score,
			Reasons:  GenerateRecommendationReasons(p, prefs, score),
			Urgency:  urgencyFor(score),
			Category: e.categoryFor(p),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

func (e *Engine) categoryFor(p models.Property) models.Category {
	if days, ok := e.evaluator.DaysUntilLeaseEnd(p); ok && days <= compliance.LeaseWatchDays {
		return models.CategoryLeaseExpiring
	}
	if p.IsCurated {
		return models.CategoryOffMarket
	}
	return models.CategoryPortfolioMatch
}

// GenerateConciergeInsights builds proactive suggestions for a client and
// orders them by urgency, high first.
func (e *Engine) GenerateConciergeInsights(properties, portfolio []models.Property, prefs models.UserPreferences) []models.ConciergeInsight {
	now := e.evaluator.Now()
	var insights []models.ConciergeInsight

	if recs := e.GeneratePropertyRecommendations(properties, prefs, portfolio); len(recs) > 0 && recs[0].Score >= HighUrgencyScore {
		top := recs[0]
		p := top.Property
		insights = append(insights, models.ConciergeInsight{
			ID:          "rec-" + p.ID,
			Type:        models.InsightRecommendation,
			Title:       "Perfect Match Available",
			Message:     fmt.Sprintf("%s in %s matches your criteria exceptionally well. %s.", p.Title, p.City, firstReason(top.Reasons)),
			Property:    &p,
			ActionLabel: "View Property",
			Urgency:     top.Urgency,
			Timestamp:   now,
			Metadata: map[string]interface{}{
				"score":   top.Score,
				"reasons": top.Reasons,
			},
		})
	}

	for _, held := range portfolio {
		days, ok := e.evaluator.DaysUntilLeaseEnd(held)
		if !ok || days <= 0 || days > InsightLeaseDays {
			continue
		}
		p := held
		urgency := models.UrgencyMedium
		if days <= compliance.LeaseUrgentDays {
			urgency = models.UrgencyHigh
		}
		insights = append(insights, models.ConciergeInsight{
			ID:          "lease-" + p.ID,
			Type:        models.InsightAlert,
			Title:       "Lease Expiring Soon",
			Message:     fmt.Sprintf("Your lease at %s expires in %d days. Would you like me to find similar properties?", p.Address, days),
			Property:    &p,
			ActionLabel: "Find Alternatives",
			Urgency:     urgency,
			Timestamp:   now,
		})
	}

	for _, candidate := range properties {
		if !candidate.IsCurated || !prefs.PrefersCity(candidate.City) {
			continue
		}
		p := candidate
		insights = append(insights, models.ConciergeInsight{
			ID:          "off-market-" + p.ID,
			Type:        models.InsightOpportunity,
			Title:       "Exclusive Off-Market Listing",
			Message:     fmt.Sprintf("A curated %dBR property just became available in %s. This won't last long.", p.Bedrooms, p.City),
			Property:    &p,
			ActionLabel: "View Details",
			Urgency:     models.UrgencyHigh,
			Timestamp:   now,
		})
		break
	}

	for _, held := range portfolio {
		if held.CurrentRent <= 0 || held.ProjectedRent <= held.CurrentRent*RentUpsideRatio {
			continue
		}
		p := held
		monthly := p.ProjectedRent - p.CurrentRent
		insights = append(insights, models.ConciergeInsight{
			ID:    "refi-" + p.ID,
			Type:  models.InsightAdvice,
			Title: "Refinancing Opportunity",
			Message: fmt.Sprintf("Market rates suggest you could increase rent on %s by $%s/month. Annual impact: $%s.",
				p.Address, util.FormatNumber(monthly), util.FormatNumber(monthly*12)),
			Property:    &p,
			ActionLabel: "Analyze Impact",
			Urgency:     models.UrgencyMedium,
			Timestamp:   now,
		})
		break
	}

	total := 0.0
	for _, held := range portfolio {
		total += held.Price
	}
	if total > DiversifyAbove && prefs.InvestmentGoals == models.GoalCashFlow {
		insights = append(insights, models.ConciergeInsight{
			ID:          "diversification",
			Type:        models.InsightAdvice,
			Title:       "Portfolio Diversification",
			Message:     fmt.Sprintf("Your portfolio is valued at $%.1fM. Consider diversifying into emerging markets for balanced growth.", total/1_000_000),
			ActionLabel: "Explore Markets",
			Urgency:     models.UrgencyLow,
			Timestamp:   now,
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Urgency.Rank() > insights[j].Urgency.Rank()
	})
	return insights
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}

var std = NewEngine(nil)

// GeneratePropertyRecommendations ranks properties against the wall clock.
func GeneratePropertyRecommendations(properties []models.Property, prefs models.UserPreferences, portfolio []models.Property) []models.PropertyRecommendation {
	return std.GeneratePropertyRecommendations(properties, prefs, portfolio)
}

// GenerateConciergeInsights builds insights against the wall clock.
func GenerateConciergeInsights(properties, portfolio []models.Property, prefs models.UserPreferences) []models.ConciergeInsight {
	return std.GenerateConciergeInsights(properties, portfolio, prefs)
}
