package models

import "time"

// PriceAlert watches the listing set for properties matching a filter.
type PriceAlert struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	MinPrice          float64    `json:"minPrice"`
	MaxPrice          float64    `json:"maxPrice"`
	Bedrooms          int        `json:"bedrooms,omitempty"`  // 0 = any
	Bathrooms         int        `json:"bathrooms,omitempty"` // 0 = any
	Location          string     `json:"location,omitempty"`  // "City, ST", "all" or empty
	Enabled           bool       `json:"enabled"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastNotified      *time.Time `json:"lastNotified,omitempty"`
	MatchedProperties []string   `json:"matchedProperties"`
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// ChannelPreference enables a delivery channel for a set of priorities.
type ChannelPreference struct {
	Enabled     bool       `json:"enabled" yaml:"enabled"`
	Destination string     `json:"destination" yaml:"destination"`
	Priorities  []Priority `json:"priorities" yaml:"priorities"`
}

// Accepts reports whether the channel is usable for the given priority.
func (c ChannelPreference) Accepts(p Priority) bool {
	if !c.Enabled || c.Destination == "" {
		return false
	}
	for _, x := range c.Priorities {
		if x == p {
			return true
		}
	}
	return false
}

// Notification is the payload handed to the delivery queue.
type Notification struct {
	ID          string    `json:"id"`
	AlertID     string    `json:"alertId"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Priority    Priority  `json:"priority"`
	PropertyIDs []string  `json:"propertyIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type DeliveryLog struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notificationId"`
	Channel        Channel        `json:"channel"`
	Destination    string         `json:"destination"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         DeliveryStatus `json:"status"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
}
