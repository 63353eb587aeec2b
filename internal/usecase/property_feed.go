package usecase

import (
	"context"
	"fmt"

	"EstateDesk/internal/domain/models"
	domrepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	"EstateDesk/internal/services/compliance"
	"EstateDesk/internal/services/recommendation"
)

// PropertyFeed builds the agent and client views. Compliance flags are
// recomputed on every read so they always reflect the current date.
type PropertyFeed struct {
	props     domrepo.PropertyStore
	prefs     domrepo.PreferenceStore
	market    service.MarketFeed
	evaluator *compliance.Evaluator
	engine    *recommendation.Engine
}

func NewPropertyFeed(
	props domrepo.PropertyStore,
	prefs domrepo.PreferenceStore,
	market service.MarketFeed,
	evaluator *compliance.Evaluator,
	engine *recommendation.Engine,
) *PropertyFeed {
	if evaluator == nil {
		evaluator = compliance.NewEvaluator()
	}
	if engine == nil {
		engine = recommendation.NewEngine(evaluator)
	}
	return &PropertyFeed{props: props, prefs: prefs, market: market, evaluator: evaluator, engine: engine}
}

// Properties returns every listing with compliance flags attached.
func (f *PropertyFeed) Properties(ctx context.Context) ([]models.Property, error) {
	list, err := f.props.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return f.evaluator.AnalyzeAll(list), nil
}

func (f *PropertyFeed) Property(ctx context.Context, id string) (models.Property, error) {
	p, err := f.props.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	return f.evaluator.AnalyzeProperty(p), nil
}

func (f *PropertyFeed) Watchlist(ctx context.Context) ([]models.Property, error) {
	all, err := f.Properties(ctx)
	if err != nil {
		return nil, err
	}
	return f.evaluator.WatchlistProperties(all), nil
}

func (f *PropertyFeed) RiskMap(ctx context.Context) ([]models.Property, error) {
	all, err := f.Properties(ctx)
	if err != nil {
		return nil, err
	}
	return compliance.RiskMapProperties(all), nil
}

// AgentDashboard counts flags, not properties, per severity.
func (f *PropertyFeed) AgentDashboard(ctx context.Context) (models.AgentDashboard, error) {
	all, err := f.Properties(ctx)
	if err != nil {
		return models.AgentDashboard{}, err
	}
	d := models.AgentDashboard{
		Properties: all,
		Watchlist:  f.evaluator.WatchlistProperties(all),
		RiskMap:    compliance.RiskMapProperties(all),
	}
	for _, p := range all {
		for _, flag := range p.ComplianceFlags {
			switch flag.Severity {
			case models.SeverityUrgent:
				d.Urgent++
			case models.SeverityWarning:
				d.Warnings++
			}
		}
	}
	return d, nil
}

func (f *PropertyFeed) Preferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	return f.prefs.Get(ctx, userID)
}

func (f *PropertyFeed) SavePreferences(ctx context.Context, userID string, prefs models.UserPreferences) error {
	return f.prefs.Save(ctx, userID, prefs)
}

// userContext loads what every client view of userID needs.
func (f *PropertyFeed) userContext(ctx context.Context, userID string) (all, portfolio []models.Property, prefs models.UserPreferences, err error) {
	if all, err = f.Properties(ctx); err != nil {
		return
	}
	held, err := f.props.Portfolio(ctx, userID)
	if err != nil {
		err = fmt.Errorf("portfolio %s: %w", userID, err)
		return
	}
	portfolio = f.evaluator.AnalyzeAll(held)
	prefs, err = f.prefs.Get(ctx, userID)
	return
}

func (f *PropertyFeed) Recommendations(ctx context.Context, userID string) ([]models.PropertyRecommendation, error) {
	all, portfolio, prefs, err := f.userContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.engine.GeneratePropertyRecommendations(all, prefs, portfolio), nil
}

func (f *PropertyFeed) Insights(ctx context.Context, userID string) ([]models.ConciergeInsight, error) {
	all, portfolio, prefs, err := f.userContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.engine.GenerateConciergeInsights(all, portfolio, prefs), nil
}

// ClientFeed returns curated listings plus recommendations and insights for
// the user's stored preferences.
func (f *PropertyFeed) ClientFeed(ctx context.Context, userID string) (models.ClientFeed, error) {
	all, portfolio, prefs, err := f.userContext(ctx, userID)
	if err != nil {
		return models.ClientFeed{}, err
	}
	curated := make([]models.Property, 0)
	for _, p := range all {
		if p.IsCurated {
			curated = append(curated, p)
		}
	}
	return models.ClientFeed{
		UserID:          userID,
		Preferences:     prefs,
		Curated:         curated,
		Recommendations: f.engine.GeneratePropertyRecommendations(all, prefs, portfolio),
		Insights:        f.engine.GenerateConciergeInsights(all, portfolio, prefs),
	}, nil
}

// PortfolioValue values the user's holdings at simulated prices.
func (f *PropertyFeed) PortfolioValue(ctx context.Context, userID string) (models.PortfolioValue, error) {
	held, err := f.props.Portfolio(ctx, userID)
	if err != nil {
		return models.PortfolioValue{}, fmt.Errorf("portfolio %s: %w", userID, err)
	}
	return f.market.PortfolioValue(held), nil
}
