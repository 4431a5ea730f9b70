package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
)

// ScopeResolver expands a campaign's declared scope into the concrete set of
// product IDs it currently covers. Resolution always hits the catalog so the
// result reflects category membership at call time; it is never cached.
type ScopeResolver struct {
	catalog repository.CatalogRepository
	logger  *slog.Logger
}

// NewScopeResolver creates a new scope resolver.
func NewScopeResolver(catalog repository.CatalogRepository, logger *slog.Logger) *ScopeResolver {
	return &ScopeResolver{
		catalog: catalog,
		logger:  logger,
	}
}

// Resolve returns the sorted, deduplicated product IDs in the campaign's
// scope. References to products or categories that no longer exist are
// silently dropped; a campaign with no explicit scope covers every published
// product.
func (r *ScopeResolver) Resolve(ctx context.Context, c *domain.Campaign) ([]string, error) {
	if c.IsCatalogWide() {
		ids, err := r.catalog.ListPublishedProductIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve catalog-wide scope: %w", err)
		}
		return sortedUnique(ids), nil
	}

	seen := make(map[string]struct{})

	if len(c.ApplicableProducts) > 0 {
		existing, err := r.catalog.FilterExistingProductIDs(ctx, c.ApplicableProducts)
		if err != nil {
			return nil, fmt.Errorf("resolve product scope: %w", err)
		}
		if len(existing) < len(c.ApplicableProducts) {
			r.logger.DebugContext(ctx, "campaign scope references missing products",
				slog.String("campaign_id", c.ID),
				slog.Int("referenced", len(c.ApplicableProducts)),
				slog.Int("existing", len(existing)),
			)
		}
		for _, id := range existing {
			seen[id] = struct{}{}
		}
	}

	if len(c.ApplicableCategories) > 0 {
		members, err := r.catalog.ListProductIDsByCategories(ctx, c.ApplicableCategories)
		if err != nil {
			return nil, fmt.Errorf("resolve category scope: %w", err)
		}
		for _, id := range members {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// sortedUnique sorts ids and removes duplicates in place.
func sortedUnique(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	var prev string
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		out = append(out, id)
		prev = id
	}
	return out
}
