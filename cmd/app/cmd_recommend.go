package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/repository"
	"EstateDesk/internal/services/recommendation"
)

var (
	recUser     string
	recFormat   string
	recMin      float64
	recMax      float64
	recCities   []string
	recGoal     string
	recInsights bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Score the property file against a client's preferences",
	Example: `  estatedesk recommend --user alice
  estatedesk recommend --cities Brooklyn,Queens --goal cash-flow --insights`,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	f := recommendCmd.Flags()
	f.StringVar(&recUser, "user", "default", "portfolio owner from data.portfolios")
	f.StringVar(&recFormat, "format", "table", "output format: table, json")
	f.Float64Var(&recMin, "min", 0, "minimum price (0 keeps the default)")
	f.Float64Var(&recMax, "max", 0, "maximum price (0 keeps the default)")
	f.StringSliceVar(&recCities, "cities", nil, "preferred cities")
	f.StringVar(&recGoal, "goal", "", "investment goal: cash-flow, appreciation, balanced")
	f.BoolVar(&recInsights, "insights", false, "also print concierge insights")
}

func preferencesFromFlags() (models.UserPreferences, error) {
	prefs := recommendation.DefaultPreferences()
	if recMin > 0 {
		prefs.PriceRange.Min = recMin
	}
	if recMax > 0 {
		prefs.PriceRange.Max = recMax
	}
	if prefs.PriceRange.Min > prefs.PriceRange.Max {
		return prefs, fmt.Errorf("--min %.0f is above --max %.0f", prefs.PriceRange.Min, prefs.PriceRange.Max)
	}
	if len(recCities) > 0 {
		prefs.PreferredCities = recCities
	}
	switch models.InvestmentGoal(recGoal) {
	case "":
	case models.GoalCashFlow, models.GoalAppreciation, models.GoalBalanced:
		prefs.InvestmentGoals = models.InvestmentGoal(recGoal)
	default:
		return prefs, fmt.Errorf("unknown goal %q", recGoal)
	}
	return prefs, nil
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefs, err := preferencesFromFlags()
	if err != nil {
		return err
	}
	store, err := repository.LoadPropertyStore(cfg.Data.PropertiesFile, cfg.Data.Portfolios)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	props, err := store.List(ctx)
	if err != nil {
		return err
	}
	portfolio, err := store.Portfolio(ctx, recUser)
	if err != nil {
		return err
	}

	engine := recommendation.NewEngine(nil)
	recs := engine.GeneratePropertyRecommendations(props, prefs, portfolio)
	var insights []models.ConciergeInsight
	if recInsights {
		insights = engine.GenerateConciergeInsights(props, portfolio, prefs)
	}
	return writeRecommendations(cmd.OutOrStdout(), recFormat, recs, insights)
}

func writeRecommendations(w io.Writer, format string, recs []models.PropertyRecommendation, insights []models.ConciergeInsight) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Recommendations []models.PropertyRecommendation `json:"recommendations"`
			Insights        []models.ConciergeInsight       `json:"insights,omitempty"`
		}{recs, insights})
	case "table":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tURGENCY\tCATEGORY\tPROPERTY\tREASONS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s (%s)\t%s\n",
			r.Score, r.Urgency, r.Category, r.Property.Title, r.Property.City, strings.Join(r.Reasons, "; "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no property scored 50 or more")
	}
	for _, in := range insights {
		fmt.Fprintf(w, "[%s] %s: %s\n", in.Urgency, in.Title, in.Message)
	}
	return nil
}
