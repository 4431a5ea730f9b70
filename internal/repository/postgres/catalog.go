package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
	"github.com/shopforge/promotion-service/pkg/database"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// FilterExistingProductIDs returns the subset of ids that exist as published products.
func (r *CatalogRepository) FilterExistingProductIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT id
		FROM products
		WHERE id = ANY($1) AND status = $2`

	return r.listIDs(ctx, query, ids, domain.ProductStatusPublished)
}

// ListProductIDsByCategories returns the distinct published product ids
// attached to any of the given active categories.
func (r *CatalogRepository) ListProductIDsByCategories(ctx context.Context, categoryIDs []string) ([]string, error) {
	if len(categoryIDs) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT DISTINCT pc.product_id
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		JOIN products p ON p.id = pc.product_id
		WHERE pc.category_id = ANY($1)
		  AND c.is_active
		  AND p.status = $2`

	return r.listIDs(ctx, query, categoryIDs, domain.ProductStatusPublished)
}

// ListPublishedProductIDs returns every published product id.
func (r *CatalogRepository) ListPublishedProductIDs(ctx context.Context) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM products WHERE status = $1`, domain.ProductStatusPublished)
}

// ListProductIDsAttributedTo returns products whose attributed campaign set
// contains campaignID.
func (r *CatalogRepository) ListProductIDsAttributedTo(ctx context.Context, campaignID string) ([]string, error) {
	query := `
		SELECT id
		FROM products
		WHERE attributed_campaigns @> jsonb_build_array($1::text)`

	return r.listIDs(ctx, query, campaignID)
}

// ListProductIDsWithPromotions returns every product carrying at least one
// attributed campaign.
func (r *CatalogRepository) ListProductIDsWithPromotions(ctx context.Context) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM products WHERE jsonb_array_length(attributed_campaigns) > 0`)
}

// RecomputePricing loads the product row under a FOR UPDATE lock, applies
// compute to the current pricing and writes the decision back. The row lock
// serializes concurrent recomputes of the same product. Reports whether the
// stored pricing changed.
func (r *CatalogRepository) RecomputePricing(ctx context.Context, productID string, compute repository.PricingFunc) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	selectQuery := `
		SELECT base_price, promotional_price, attributed_campaigns
		FROM products
		WHERE id = $1
		FOR UPDATE`

	var (
		p              domain.ProductPricing
		attributedJSON []byte
	)
	p.ProductID = productID

	err = tx.QueryRow(ctx, selectQuery, productID).Scan(&p.BasePrice, &p.PromotionalPrice, &attributedJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.NotFound("product", productID)
		}
		return false, fmt.Errorf("lock product pricing: %w", err)
	}

	if attributedJSON != nil {
		if err := json.Unmarshal(attributedJSON, &p.AttributedCampaigns); err != nil {
			return false, fmt.Errorf("unmarshal attributed_campaigns: %w", err)
		}
	}
	if p.AttributedCampaigns == nil {
		p.AttributedCampaigns = []string{}
	}

	decision := compute(&p)

	if pricingEqual(p, decision) {
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("commit transaction: %w", err)
		}
		return false, nil
	}

	decisionJSON, err := json.Marshal(decision.AttributedCampaigns)
	if err != nil {
		return false, fmt.Errorf("marshal attributed_campaigns: %w", err)
	}

	updateQuery := `
		UPDATE products
		SET promotional_price = $1, attributed_campaigns = $2, updated_at = NOW()
		WHERE id = $3`

	if _, err := tx.Exec(ctx, updateQuery, decision.PromotionalPrice, decisionJSON, productID); err != nil {
		return false, fmt.Errorf("update product pricing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	return true, nil
}

// ListAvailableProducts returns published product summaries for the campaign
// scope picker, ordered by name.
func (r *CatalogRepository) ListAvailableProducts(ctx context.Context) ([]domain.ProductSummary, error) {
	query := `
		SELECT p.id, p.name, p.base_price,
			   COALESCE(p.promotional_price, p.base_price) AS effective_price,
			   COALESCE(jsonb_agg(pc.category_id) FILTER (WHERE pc.category_id IS NOT NULL), '[]'::jsonb) AS category_ids
		FROM products p
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		WHERE p.status = $1
		GROUP BY p.id, p.name, p.base_price, p.promotional_price
		ORDER BY p.name ASC, p.id ASC`

	rows, err := r.pool.Query(ctx, query, domain.ProductStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}
	defer rows.Close()

	var products []domain.ProductSummary
	for rows.Next() {
		var (
			p            domain.ProductSummary
			categoryJSON []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.BasePrice, &p.EffectivePrice, &categoryJSON); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}

		if categoryJSON != nil {
			if err := json.Unmarshal(categoryJSON, &p.CategoryIDs); err != nil {
				return nil, fmt.Errorf("unmarshal category_ids: %w", err)
			}
		}
		if p.CategoryIDs == nil {
			p.CategoryIDs = []string{}
		}

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.ProductSummary{}
	}

	return products, nil
}

// listIDs executes a query expected to return a single text column.
func (r *CatalogRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product id rows: %w", err)
	}

	if ids == nil {
		ids = []string{}
	}

	return ids, nil
}

// pricingEqual reports whether a pricing decision leaves the stored row as-is.
func pricingEqual(p domain.ProductPricing, d domain.PricingDecision) bool {
	if (p.PromotionalPrice == nil) != (d.PromotionalPrice == nil) {
		return false
	}
	if p.PromotionalPrice != nil && *p.PromotionalPrice != *d.PromotionalPrice {
		return false
	}

	current := slices.Clone(p.AttributedCampaigns)
	next := slices.Clone(d.AttributedCampaigns)
	slices.Sort(current)
	slices.Sort(next)
	return slices.Equal(current, next)
}
