package alerts

import (
	"fmt"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/pkg/util"
)

// NotifyCooldown is the minimum gap between two notifications of one alert.
const NotifyCooldown = 5 * time.Minute

// LocationAll matches every property.
const LocationAll = "all"

// Matches reports whether p satisfies every criterion of a.
func Matches(a models.PriceAlert, p models.Property) bool {
	if p.Price < a.MinPrice || p.Price > a.MaxPrice {
		return false
	}
	if a.Bedrooms != 0 && p.Bedrooms != a.Bedrooms {
		return false
	}
	if a.Bathrooms != 0 && p.Bathrooms != a.Bathrooms {
		return false
	}
	return a.Location == "" || a.Location == LocationAll || p.Location() == a.Location
}

// Evaluate recomputes the matched set of an enabled alert. A notification is
// returned when a property joined the set and the cooldown has elapsed.
// Properties that join during the cooldown stay out of the returned set so a
// later evaluation still reports them.
func Evaluate(a models.PriceAlert, properties []models.Property, now time.Time) (models.PriceAlert, *models.Notification) {
	if !a.Enabled {
		return a, nil
	}

	previous := make(map[string]bool, len(a.MatchedProperties))
	for _, id := range a.MatchedProperties {
		previous[id] = true
	}

	matched := make([]string, 0)
	kept := make([]string, 0)
	var fresh []string
	for _, p := range properties {
		if !Matches(a, p) {
			continue
		}
		matched = append(matched, p.ID)
		if previous[p.ID] {
			kept = append(kept, p.ID)
		} else {
			fresh = append(fresh, p.ID)
		}
	}

	if len(fresh) == 0 {
		a.MatchedProperties = matched
		return a, nil
	}
	if a.LastNotified != nil && now.Sub(*a.LastNotified) <= NotifyCooldown {
		a.MatchedProperties = kept
		return a, nil
	}

	a.MatchedProperties = matched
	notifiedAt := now
	a.LastNotified = &notifiedAt
	return a, &models.Notification{
		AlertID:     a.ID,
		UserID:      a.UserID,
		Title:       "Price Alert",
		Message:     alertMessage(a, len(fresh)),
		Priority:    models.PriorityHigh,
		PropertyIDs: fresh,
		CreatedAt:   now,
	}
}

func alertMessage(a models.PriceAlert, n int) string {
	noun := "properties"
	if n == 1 {
		noun = "property"
	}
	return fmt.Sprintf("%d new %s match your criteria ($%s - $%s)",
		n, noun, util.FormatNumber(a.MinPrice), util.FormatNumber(a.MaxPrice))
}
