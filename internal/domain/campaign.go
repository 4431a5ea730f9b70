package domain

import (
	"time"
)

// Discount type constants.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// MaxPercentageBasisPoints is the upper bound for percentage discounts
// (10000 basis points = 100%).
const MaxPercentageBasisPoints = 10000

// Campaign status constants.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusActive    = "active"
	CampaignStatusExpired   = "expired"
)

// Campaign is a time-windowed, scoped discount definition. A nil StartsAt or
// EndsAt means "no bound" on that side. A campaign with neither applicable
// products nor categories targets the whole catalog.
type Campaign struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	DiscountType         string     `json:"discount_type"`
	DiscountValue        int64      `json:"discount_value"`
	Status               string     `json:"status"`
	StartsAt             *time.Time `json:"starts_at,omitempty"`
	EndsAt               *time.Time `json:"ends_at,omitempty"`
	ApplicableProducts   []string   `json:"applicable_products"`
	ApplicableCategories []string   `json:"applicable_categories"`
	Stackable            bool       `json:"stackable"`
	IsPublic             bool       `json:"is_public"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ValidDiscountTypes returns the set of valid discount types.
func ValidDiscountTypes() []string {
	return []string{DiscountTypePercentage, DiscountTypeFixed}
}

// IsValidDiscountType checks whether t is a valid discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidStatuses returns the set of valid campaign statuses.
func ValidStatuses() []string {
	return []string{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusActive,
		CampaignStatusExpired,
	}
}

// IsValidStatus checks whether status is a valid campaign status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition reports whether the status transition from -> to is legal.
// Deletion is not a status and is allowed from any state.
func CanTransition(from, to string) bool {
	switch from {
	case CampaignStatusDraft:
		return to == CampaignStatusScheduled || to == CampaignStatusActive
	case CampaignStatusScheduled:
		return to == CampaignStatusActive
	case CampaignStatusActive:
		return to == CampaignStatusExpired
	default:
		return false
	}
}

// WindowContains reports whether t falls inside the campaign's time window.
// Open-ended bounds are always satisfied.
func (c *Campaign) WindowContains(t time.Time) bool {
	if c.StartsAt != nil && t.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && t.After(*c.EndsAt) {
		return false
	}
	return true
}

// WindowStarted reports whether the campaign's start bound has arrived.
func (c *Campaign) WindowStarted(t time.Time) bool {
	return c.StartsAt == nil || !t.Before(*c.StartsAt)
}

// WindowEnded reports whether the campaign's end bound has passed.
func (c *Campaign) WindowEnded(t time.Time) bool {
	return c.EndsAt != nil && t.After(*c.EndsAt)
}

// IsCatalogWide reports whether the campaign targets every published product.
func (c *Campaign) IsCatalogWide() bool {
	return len(c.ApplicableProducts) == 0 && len(c.ApplicableCategories) == 0
}
