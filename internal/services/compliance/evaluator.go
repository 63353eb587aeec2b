package compliance

import (
	"fmt"
	"math"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/pkg/util"
)

const (
	// GoodCauseMultiplier is applied to fair-market rent to get the exemption threshold.
	GoodCauseMultiplier = 2.45
	// RentIncreaseCap is the legal ceiling factor under Good Cause.
	RentIncreaseCap = 1.10
	// LeadCutoffYear: properties built before this year are subject to lead rules.
	LeadCutoffYear = 1978
	// LeadInspectionYears is the maximum inspection age in calendar years.
	LeadInspectionYears = 3
	// LeaseWatchDays is the lease-expiration watch window.
	LeaseWatchDays = 90
	// LeaseUrgentDays marks expirations inside this many days as urgent.
	LeaseUrgentDays = 30
)

// Evaluator runs the jurisdictional rules against a single property.
// All rules are total: missing optional fields make a rule inapplicable or count as zero.
type Evaluator struct {
	now func() time.Time
}

// Option configures Evaluator.
type Option func(*Evaluator)

// WithClock overrides the wall clock used for date-relative rules.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator creates an evaluator using time.Now unless overridden.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the evaluator's current time.
func (e *Evaluator) Now() time.Time { return e.now() }

// GoodCauseNY evaluates the New York Good Cause eviction rule.
func (e *Evaluator) GoodCauseNY(p models.Property) *models.ComplianceFlag {
	if p.State != "NY" {
		return nil
	}

	threshold := p.FairMarketRent * GoodCauseMultiplier
	if p.CurrentRent > threshold {
		return newFlag(models.FlagGoodCauseNY, models.SeverityInfo,
			fmt.Sprintf("Property EXEMPT from Good Cause (Rent: $%s > Threshold: $%s)",
				util.FormatNumber(p.CurrentRent), util.FormatNumber(threshold)),
			threshold)
	}

	legalCap := p.CurrentRent * RentIncreaseCap
	return newFlag(models.FlagGoodCauseNY, models.SeverityWarning,
		fmt.Sprintf("Good Cause applies. Legal rent cap: $%s (10%% increase limit)", util.FormatNumber(legalCap)),
		legalCap)
}

// LeadWatchdogNJ evaluates the New Jersey lead inspection rule for pre-1978 stock.
func (e *Evaluator) LeadWatchdogNJ(p models.Property) *models.ComplianceFlag {
	if p.State != "NJ" || p.YearBuilt >= LeadCutoffYear {
		return nil
	}

	inspected, ok := util.ParseDate(p.LastInspectionDate)
	if !ok {
		return newFlag(models.FlagLeadWatchdogNJ, models.SeverityUrgent,
			"Pre-1978 property with NO lead inspection on record",
			float64(p.YearBuilt))
	}

	now := e.now()
	if inspected.Before(now.AddDate(-LeadInspectionYears, 0, 0)) {
		daysSince := wholeDays(now.Sub(inspected))
		return newFlag(models.FlagLeadWatchdogNJ, models.SeverityUrgent,
			fmt.Sprintf("Lead inspection overdue (%d days since last inspection)", daysSince),
			float64(daysSince))
	}

	return newFlag(models.FlagLeadWatchdogNJ, models.SeverityInfo, "Lead inspection current", 0)
}

// LeaseExpiration flags leases that ended or end within the watch window.
func (e *Evaluator) LeaseExpiration(p models.Property) *models.ComplianceFlag {
	days, ok := e.DaysUntilLeaseEnd(p)
	if !ok {
		return nil
	}

	switch {
	case days < 0:
		return newFlag(models.FlagLeaseExpiring, models.SeverityUrgent,
			fmt.Sprintf("Lease EXPIRED %d days ago", -days),
			float64(days))
	case days <= LeaseWatchDays:
		sev := models.SeverityWarning
		if days <= LeaseUrgentDays {
			sev = models.SeverityUrgent
		}
		return newFlag(models.FlagLeaseExpiring, sev,
			fmt.Sprintf("Lease expires in %d days", days),
			float64(days))
	default:
		return nil
	}
}

// DaysUntilLeaseEnd returns floor((leaseEnd - now) / 1 day). ok is false when
// the property has no parseable lease end date.
func (e *Evaluator) DaysUntilLeaseEnd(p models.Property) (int, bool) {
	end, ok := util.ParseDate(p.LeaseEndDate)
	if !ok {
		return 0, false
	}
	return wholeDays(end.Sub(e.now())), true
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func newFlag(t models.FlagType, sev models.Severity, msg string, value float64) *models.ComplianceFlag {
	v := value
	return &models.ComplianceFlag{
		Type:            t,
		Severity:        sev,
		Message:         msg,
		CalculatedValue: &v,
	}
}
