package models

// AgentDashboard is the compliance view served to agents.
type AgentDashboard struct {
	Properties []Property `json:"properties"`
	Watchlist  []Property `json:"watchlist"`
	RiskMap    []Property `json:"riskMap"`
	Urgent     int        `json:"urgent"`
	Warnings   int        `json:"warnings"`
}

// ClientFeed is the curated view served to clients.
type ClientFeed struct {
	UserID          string                   `json:"userId"`
	Preferences     UserPreferences          `json:"preferences"`
	Curated         []Property               `json:"curated"`
	Recommendations []PropertyRecommendation `json:"recommendations"`
	Insights        []ConciergeInsight       `json:"insights"`
}
