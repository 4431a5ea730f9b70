package domain

// Product status constants (catalog side). Only published products are
// eligible for catalog-wide campaigns.
const (
	ProductStatusDraft     = "draft"
	ProductStatusPublished = "published"
	ProductStatusArchived  = "archived"
)

// ProductSummary is the compact product view served to the campaign
// scope-picker UI.
type ProductSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	BasePrice      int64    `json:"base_price"`
	EffectivePrice int64    `json:"effective_price"`
	CategoryIDs    []string `json:"category_ids"`
}
