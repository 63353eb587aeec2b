package models

// Request DTOs for the HTTP API. Bound and validated by pkg/http.ReadAndValidateRequest.

type PropertyIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type UserRequest struct {
	User string `query:"user" json:"user" default:"default" validate:"required,max=64"`
}

type PreferencesPathRequest struct {
	User string `param:"user" validate:"required,max=64"`
}

type UpdatePreferencesRequest struct {
	User        string          `param:"user" validate:"required,max=64"`
	Preferences UserPreferences `json:"preferences"`
}

type VolatilityRequest struct {
	Level float64 `json:"level" validate:"gt=0,lte=1"`
}

type FrequencyRequest struct {
	Multiplier float64 `json:"multiplier" validate:"gt=0,lte=100"`
}

type SnapshotHistoryRequest struct {
	Seconds int `query:"seconds" json:"seconds" default:"0" validate:"gte=0,lte=86400"`
}

type RestoreSnapshotRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

type CreateAlertRequest struct {
	User      string  `json:"user" default:"default" validate:"required,max=64"`
	MinPrice  float64 `json:"minPrice" validate:"gte=0"`
	MaxPrice  float64 `json:"maxPrice" validate:"gt=0"`
	Bedrooms  int     `json:"bedrooms" validate:"gte=0,lte=20"`
	Bathrooms int     `json:"bathrooms" validate:"gte=0,lte=20"`
	Location  string  `json:"location" validate:"max=128"`
}

type AlertIDRequest struct {
	ID   string `param:"id" validate:"required,uuid"`
	User string `query:"user" default:"default" validate:"required,max=64"`
}

type ToggleAlertRequest struct {
	ID      string `param:"id" validate:"required,uuid"`
	User    string `json:"user" default:"default" validate:"required,max=64"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type UpdateChannelRequest struct {
	Channel     string     `param:"channel" validate:"required,oneof=email sms webhook"`
	Enabled     bool       `json:"enabled"`
	Destination string     `json:"destination" validate:"required_if=Enabled true,max=256"`
	Priorities  []Priority `json:"priorities" validate:"dive,oneof=critical high medium low"`
}

type StreamRequest struct {
	// IDs is a comma separated property filter; empty streams everything.
	IDs string `query:"ids" validate:"max=2048"`
}
