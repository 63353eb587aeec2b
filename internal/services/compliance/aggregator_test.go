package compliance

import (
	"testing"

	"EstateDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePropertyOrderAndCopy(t *testing.T) {
	e := newTestEvaluator()

	in := models.Property{
		ID:             "ny-1",
		State:          "NY",
		CurrentRent:    3000,
		FairMarketRent: 1500,
		LeaseEndDate:   daysFromNow(20),
	}
	out := e.AnalyzeProperty(in)

	require.Len(t, out.ComplianceFlags, 2)
	assert.Equal(t, models.FlagGoodCauseNY, out.ComplianceFlags[0].Type)
	assert.Equal(t, models.FlagLeaseExpiring, out.ComplianceFlags[1].Type)
	assert.False(t, out.HasLeadRisk)
	assert.Nil(t, in.ComplianceFlags, "input must not be mutated")
}

func TestAnalyzePropertyLeadRisk(t *testing.T) {
	e := newTestEvaluator()

	out := e.AnalyzeProperty(models.Property{State: "NJ", YearBuilt: 1960, LeaseEndDate: daysFromNow(200)})
	require.Len(t, out.ComplianceFlags, 1)
	assert.Equal(t, models.FlagLeadWatchdogNJ, out.ComplianceFlags[0].Type)
	assert.True(t, out.HasLeadRisk)

	current := e.AnalyzeProperty(models.Property{
		State:              "NJ",
		YearBuilt:          1960,
		LastInspectionDate: daysFromNow(-100),
	})
	assert.False(t, current.HasLeadRisk)
}

func TestAnalyzePropertyReplacesStaleFlags(t *testing.T) {
	e := newTestEvaluator()

	stale := models.Property{
		State:           "CA",
		ComplianceFlags: []models.ComplianceFlag{{Type: models.FlagLeaseExpiring, Severity: models.SeverityUrgent}},
	}
	out := e.AnalyzeProperty(stale)
	assert.Empty(t, out.ComplianceFlags)
	assert.NotNil(t, out.ComplianceFlags)
	assert.Len(t, stale.ComplianceFlags, 1)
}

func TestWatchlistProperties(t *testing.T) {
	e := newTestEvaluator()

	props := []models.Property{
		{ID: "expired", LeaseEndDate: daysFromNow(-1)},
		{ID: "today", LeaseEndDate: daysFromNow(0)},
		{ID: "edge", LeaseEndDate: daysFromNow(90)},
		{ID: "later", LeaseEndDate: daysFromNow(91)},
		{ID: "none"},
	}

	got := e.WatchlistProperties(props)
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"today", "edge"}, ids)
}

func TestRiskMapProperties(t *testing.T) {
	info := models.ComplianceFlag{Severity: models.SeverityInfo}
	warn := models.ComplianceFlag{Severity: models.SeverityWarning}
	urgent := models.ComplianceFlag{Severity: models.SeverityUrgent}

	props := []models.Property{
		{ID: "clean"},
		{ID: "info-only", ComplianceFlags: []models.ComplianceFlag{info, info}},
		{ID: "warn", ComplianceFlags: []models.ComplianceFlag{info, warn}},
		{ID: "urgent", ComplianceFlags: []models.ComplianceFlag{urgent}},
	}

	got := RiskMapProperties(props)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0].ID)
	assert.Equal(t, "urgent", got[1].ID)

	for _, p := range got {
		assert.True(t, p.HasSeverity(models.SeverityUrgent, models.SeverityWarning))
	}
}

func TestAnalyzeAllPreservesOrder(t *testing.T) {
	e := newTestEvaluator()
	props := []models.Property{{ID: "a", State: "NY"}, {ID: "b"}, {ID: "c", State: "NJ", YearBuilt: 1900}}

	out := e.AnalyzeAll(props)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
	assert.True(t, out[2].HasLeadRisk)
}
