package models

// FlagType identifies the jurisdictional rule family that produced a flag.
type FlagType string

const (
	FlagGoodCauseNY    FlagType = "GOOD_CAUSE_NY"
	FlagLeadWatchdogNJ FlagType = "LEAD_WATCHDOG_NJ"
	FlagLeaseExpiring  FlagType = "LEASE_EXPIRING"
)

// Severity of a compliance finding.
type Severity string

const (
	SeverityUrgent  Severity = "URGENT"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityUrgent, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// ComplianceFlag is an immutable finding attached to a property by the aggregator.
type ComplianceFlag struct {
	Type            FlagType `json:"type" yaml:"type"`
	Severity        Severity `json:"severity" yaml:"severity"`
	Message         string   `json:"message" yaml:"message"`
	CalculatedValue *float64 `json:"calculatedValue,omitempty" yaml:"calculatedValue,omitempty"`
}

// Value returns the calculated value or 0 when none was produced.
func (f ComplianceFlag) Value() float64 {
	if f.CalculatedValue == nil {
		return 0
	}
	return *f.CalculatedValue
}

// Property is a listing record. Optional numeric fields are zero when absent,
// optional dates are empty strings ("2006-01-02" or RFC3339 otherwise).
type Property struct {
	ID                 string  `json:"id" yaml:"id" validate:"required,max=64"`
	Title              string  `json:"title" yaml:"title"`
	Address            string  `json:"address" yaml:"address"`
	City               string  `json:"city" yaml:"city"`
	State              string  `json:"state" yaml:"state" validate:"omitempty,len=2"`
	Zip                string  `json:"zip" yaml:"zip"`
	Price              float64 `json:"price" yaml:"price" validate:"gte=0"`
	YearBuilt          int     `json:"yearBuilt" yaml:"yearBuilt"`
	Bedrooms           int     `json:"bedrooms" yaml:"bedrooms" validate:"gte=0"`
	Bathrooms          int     `json:"bathrooms" yaml:"bathrooms" validate:"gte=0"`
	Sqft               int     `json:"sqft" yaml:"sqft"`
	ImageURL           string  `json:"imageUrl" yaml:"imageUrl"`
	VideoURL           string  `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	CurrentRent        float64 `json:"currentRent,omitempty" yaml:"currentRent,omitempty"`
	ProjectedRent      float64 `json:"projectedRent,omitempty" yaml:"projectedRent,omitempty"`
	CapRate            float64 `json:"capRate,omitempty" yaml:"capRate,omitempty"`
	ROI                float64 `json:"roi,omitempty" yaml:"roi,omitempty"`
	LeaseEndDate       string  `json:"leaseEndDate,omitempty" yaml:"leaseEndDate,omitempty"`
	LastInspectionDate string  `json:"lastInspectionDate,omitempty" yaml:"lastInspectionDate,omitempty"`
	IsCurated          bool    `json:"isCurated" yaml:"isCurated"`
	FairMarketRent     float64 `json:"fairMarketRent,omitempty" yaml:"fairMarketRent,omitempty"`
	LegalRentCap       float64 `json:"legalRentCap,omitempty" yaml:"legalRentCap,omitempty"`
	HasLeadRisk        bool    `json:"hasLeadRisk" yaml:"-"`

	ComplianceFlags []ComplianceFlag `json:"complianceFlags" yaml:"-"`
}

// HasSeverity reports whether any attached flag has one of the given severities.
func (p Property) HasSeverity(levels ...Severity) bool {
	for _, f := range p.ComplianceFlags {
		for _, l := range levels {
			if f.Severity == l {
				return true
			}
		}
	}
	return false
}

// Location renders the "City, ST" label used by alert filters.
func (p Property) Location() string {
	return p.City + ", " + p.State
}
