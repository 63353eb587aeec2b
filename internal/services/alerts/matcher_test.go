package alerts

import (
	"testing"
	"time"

	"EstateDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var listings = []models.Property{
	{ID: "a", City: "Brooklyn", State: "NY", Price: 900_000, Bedrooms: 2, Bathrooms: 1},
	{ID: "b", City: "Brooklyn", State: "NY", Price: 1_500_000, Bedrooms: 3, Bathrooms: 2},
	{ID: "c", City: "Hoboken", State: "NJ", Price: 1_000_000, Bedrooms: 2, Bathrooms: 2},
}

func TestMatches(t *testing.T) {
	base := models.PriceAlert{MinPrice: 800_000, MaxPrice: 1_200_000}

	tests := []struct {
		name  string
		alter func(*models.PriceAlert)
		want  []string
	}{
		{name: "price only", want: []string{"a", "c"}},
		{name: "inclusive bounds", alter: func(a *models.PriceAlert) { a.MinPrice, a.MaxPrice = 900_000, 1_000_000 }, want: []string{"a", "c"}},
		{name: "exact bedrooms", alter: func(a *models.PriceAlert) { a.MaxPrice = 2_000_000; a.Bedrooms = 3 }, want: []string{"b"}},
		{name: "exact bathrooms", alter: func(a *models.PriceAlert) { a.Bathrooms = 2 }, want: []string{"c"}},
		{name: "location", alter: func(a *models.PriceAlert) { a.Location = "Brooklyn, NY" }, want: []string{"a"}},
		{name: "all locations", alter: func(a *models.PriceAlert) { a.Location = LocationAll }, want: []string{"a", "c"}},
		{name: "unknown location", alter: func(a *models.PriceAlert) { a.Location = "Brooklyn" }, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			if tt.alter != nil {
				tt.alter(&a)
			}
			var got []string
			for _, p := range listings {
				if Matches(a, p) {
					got = append(got, p.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateNotifiesNewMatches(t *testing.T) {
	a := models.PriceAlert{ID: "al", UserID: "u", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}

	updated, note := Evaluate(a, listings, now)
	require.NotNil(t, note)
	assert.Equal(t, []string{"a", "c"}, updated.MatchedProperties)
	require.NotNil(t, updated.LastNotified)
	assert.Equal(t, now, *updated.LastNotified)

	assert.Equal(t, "al", note.AlertID)
	assert.Equal(t, "u", note.UserID)
	assert.Equal(t, models.PriorityHigh, note.Priority)
	assert.Equal(t, []string{"a", "c"}, note.PropertyIDs)
	assert.Equal(t, "2 new properties match your criteria ($800,000 - $1,200,000)", note.Message)
}

func TestEvaluateNoNewMatches(t *testing.T) {
	a := models.PriceAlert{MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true, MatchedProperties: []string{"a", "c"}}

	updated, note := Evaluate(a, listings, now)
	assert.Nil(t, note)
	assert.Nil(t, updated.LastNotified)
}

func TestEvaluateCooldown(t *testing.T) {
	recent := now.Add(-4 * time.Minute)
	a := models.PriceAlert{MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true, MatchedProperties: []string{"a"}, LastNotified: &recent}

	updated, note := Evaluate(a, listings, now)
	assert.Nil(t, note, "within cooldown")
	assert.Equal(t, []string{"a"}, updated.MatchedProperties, "throttled matches stay pending")
	assert.Equal(t, recent, *updated.LastNotified)

	exact := now.Add(-NotifyCooldown)
	a.LastNotified = &exact
	_, note = Evaluate(a, listings, now)
	assert.Nil(t, note, "cooldown must strictly elapse")

	stale := now.Add(-6 * time.Minute)
	a.LastNotified = &stale
	updated, note = Evaluate(a, listings, now)
	require.NotNil(t, note)
	assert.Equal(t, []string{"c"}, note.PropertyIDs)
	assert.Equal(t, "1 new property match your criteria ($800,000 - $1,200,000)", note.Message)
	assert.Equal(t, now, *updated.LastNotified)
}

func TestEvaluateReportsMatchAfterCooldown(t *testing.T) {
	t0 := now
	a := models.PriceAlert{ID: "al", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}

	a, note := Evaluate(a, listings[:1], t0)
	require.NotNil(t, note)
	assert.Equal(t, []string{"a"}, note.PropertyIDs)

	a, note = Evaluate(a, listings, t0.Add(time.Minute))
	assert.Nil(t, note)
	assert.Equal(t, []string{"a"}, a.MatchedProperties)

	a, note = Evaluate(a, listings, t0.Add(6*time.Minute))
	require.NotNil(t, note)
	assert.Equal(t, []string{"c"}, note.PropertyIDs)
	assert.Equal(t, []string{"a", "c"}, a.MatchedProperties)
	assert.Equal(t, t0.Add(6*time.Minute), *a.LastNotified)
}

func TestEvaluateDropsDepartedMatches(t *testing.T) {
	a := models.PriceAlert{MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true, MatchedProperties: []string{"a", "c", "gone"}}

	updated, note := Evaluate(a, listings, now)
	assert.Nil(t, note)
	assert.Equal(t, []string{"a", "c"}, updated.MatchedProperties)
}

func TestEvaluateDisabled(t *testing.T) {
	a := models.PriceAlert{MinPrice: 0, MaxPrice: 10_000_000}
	updated, note := Evaluate(a, listings, now)
	assert.Nil(t, note)
	assert.Empty(t, updated.MatchedProperties)
}
