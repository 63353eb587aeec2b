package compliance

import "EstateDesk/internal/domain/models"

// AnalyzeProperty runs every rule in a fixed order (Good Cause, Lead, Lease)
// and returns a copy of p with recomputed flags. p is not modified.
func (e *Evaluator) AnalyzeProperty(p models.Property) models.Property {
	out := p
	out.ComplianceFlags = make([]models.ComplianceFlag, 0, 3)

	if f := e.GoodCauseNY(p); f != nil {
		out.ComplianceFlags = append(out.ComplianceFlags, *f)
	}
	lead := e.LeadWatchdogNJ(p)
	if lead != nil {
		out.ComplianceFlags = append(out.ComplianceFlags, *lead)
	}
	if f := e.LeaseExpiration(p); f != nil {
		out.ComplianceFlags = append(out.ComplianceFlags, *f)
	}

	out.HasLeadRisk = lead != nil && lead.Severity == models.SeverityUrgent
	return out
}

// AnalyzeAll analyzes every property, preserving order.
func (e *Evaluator) AnalyzeAll(properties []models.Property) []models.Property {
	out := make([]models.Property, len(properties))
	for i, p := range properties {
		out[i] = e.AnalyzeProperty(p)
	}
	return out
}

// WatchlistProperties returns properties whose lease ends within 0..90 days.
// It reads lease dates directly, not the attached flags.
func (e *Evaluator) WatchlistProperties(properties []models.Property) []models.Property {
	out := make([]models.Property, 0)
	for _, p := range properties {
		days, ok := e.DaysUntilLeaseEnd(p)
		if ok && days >= 0 && days <= LeaseWatchDays {
			out = append(out, p)
		}
	}
	return out
}

// RiskMapProperties returns properties carrying at least one URGENT or WARNING flag.
func RiskMapProperties(properties []models.Property) []models.Property {
	out := make([]models.Property, 0)
	for _, p := range properties {
		if p.HasSeverity(models.SeverityUrgent, models.SeverityWarning) {
			out = append(out, p)
		}
	}
	return out
}

var std = NewEvaluator()

// AnalyzeProperty analyzes p against the wall clock.
func AnalyzeProperty(p models.Property) models.Property { return std.AnalyzeProperty(p) }

// WatchlistProperties filters against the wall clock.
func WatchlistProperties(properties []models.Property) []models.Property {
	return std.WatchlistProperties(properties)
}

// AnalyzeAll analyzes properties against the wall clock.
func AnalyzeAll(properties []models.Property) []models.Property { return std.AnalyzeAll(properties) }
