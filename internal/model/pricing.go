package model

import "time"

// PricingRule selects an occupancy multiplier table.
type PricingRule string

const (
	RuleConservative PricingRule = "conservative"
	RuleBalanced     PricingRule = "balanced"
	RuleAggressive   PricingRule = "aggressive"
)

// Subscription is the customer class supplied per booking.
type Subscription string

const (
	SubscriptionRegular Subscription = "regular"
	SubscriptionGuest   Subscription = "guest"
)

// PricingConfig holds the manager-tuned pricing settings. Only one row (ID 1) is persisted.
type PricingConfig struct {
	ID               int64       `gorm:"primaryKey" json:"-"`
	Rule             PricingRule `gorm:"size:16;not null" json:"rule"`
	EVDiscount       float64     `gorm:"not null" json:"evDiscount"`
	BasePriceDefault float64     `gorm:"not null" json:"basePriceDefault"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
