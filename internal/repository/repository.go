package repository

import (
	"context"
	"time"

	"github.com/shopforge/promotion-service/internal/domain"
)

// CampaignFilter narrows campaign listings. A nil Status means all
// statuses; Search matches name and description.
type CampaignFilter struct {
	Status  *string
	Search  string
	Page    int
	PerPage int
}

// CampaignRepository is the persistence contract for campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error

	// ListByStatus returns every campaign in any of the given statuses,
	// ordered by created_at then id so callers iterate deterministically.
	ListByStatus(ctx context.Context, statuses ...string) ([]domain.Campaign, error)

	// ListDueScheduled returns scheduled campaigns whose window contains
	// now (or that have no window), i.e. candidates for auto-activation.
	ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// ListOverdueActive returns active campaigns whose end date has
	// passed as of now.
	ListOverdueActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// PricingFunc recomputes a product's pricing decision from its current
// state. It runs inside a row-lock transaction and must be pure: no I/O,
// no retained references to p.
type PricingFunc func(p *domain.ProductPricing) domain.PricingDecision

// CatalogRepository is the persistence contract for the product catalog
// as seen by the promotion engine.
type CatalogRepository interface {
	// FilterExistingProductIDs returns the subset of ids that exist as
	// published products, in no particular order.
	FilterExistingProductIDs(ctx context.Context, ids []string) ([]string, error)

	// ListProductIDsByCategories returns the distinct published product
	// ids attached to any of the given active categories.
	ListProductIDsByCategories(ctx context.Context, categoryIDs []string) ([]string, error)

	// ListPublishedProductIDs returns every published product id.
	ListPublishedProductIDs(ctx context.Context) ([]string, error)

	// ListProductIDsAttributedTo returns products whose attributed
	// campaign set contains campaignID.
	ListProductIDsAttributedTo(ctx context.Context, campaignID string) ([]string, error)

	// ListProductIDsWithPromotions returns every product carrying at
	// least one attributed campaign.
	ListProductIDsWithPromotions(ctx context.Context) ([]string, error)

	// RecomputePricing loads the product row under a FOR UPDATE lock,
	// applies compute to its current pricing and persists the decision.
	// It reports whether the stored pricing actually changed. Returns
	// apperrors.ErrNotFound if the product does not exist.
	RecomputePricing(ctx context.Context, productID string, compute PricingFunc) (bool, error)

	// ListAvailableProducts returns published product summaries for the
	// campaign scope picker, ordered by name.
	ListAvailableProducts(ctx context.Context) ([]domain.ProductSummary, error)
}

// ProductCache is the read-through cache over ListAvailableProducts.
type ProductCache interface {
	Get(ctx context.Context) ([]domain.ProductSummary, error)
	Set(ctx context.Context, products []domain.ProductSummary) error
	Invalidate(ctx context.Context) error
}
