package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
	"github.com/shopforge/promotion-service/pkg/database"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

const campaignColumns = `id, name, description, discount_type, discount_value, status,
		   starts_at, ends_at, applicable_products, applicable_categories,
		   stackable, is_public, created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	pool database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(pool database.DBTX) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// Create inserts a new campaign into the database.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	productsJSON, err := json.Marshal(c.ApplicableProducts)
	if err != nil {
		return fmt.Errorf("marshal applicable_products: %w", err)
	}
	categoriesJSON, err := json.Marshal(c.ApplicableCategories)
	if err != nil {
		return fmt.Errorf("marshal applicable_categories: %w", err)
	}

	query := `
		INSERT INTO campaigns (
			id, name, description, discount_type, discount_value, status,
			starts_at, ends_at, applicable_products, applicable_categories,
			stackable, is_public, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.Status,
		c.StartsAt,
		c.EndsAt,
		productsJSON,
		categoriesJSON,
		c.Stackable,
		c.IsPublic,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "name", c.Name)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns
		WHERE id = $1`, campaignColumns)

	return r.scanCampaign(ctx, query, id)
}

// List returns campaigns matching the given filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM campaigns
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		campaignColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)

	for rows.Next() {
		c, err := scanCampaignRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, totalCount, nil
}

// Update modifies an existing campaign in the database.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	productsJSON, err := json.Marshal(c.ApplicableProducts)
	if err != nil {
		return fmt.Errorf("marshal applicable_products: %w", err)
	}
	categoriesJSON, err := json.Marshal(c.ApplicableCategories)
	if err != nil {
		return fmt.Errorf("marshal applicable_categories: %w", err)
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns
		SET name = $1, description = $2, discount_type = $3, discount_value = $4,
		    status = $5, starts_at = $6, ends_at = $7, applicable_products = $8,
		    applicable_categories = $9, stackable = $10, is_public = $11, updated_at = $12
		WHERE id = $13`

	ct, err := r.pool.Exec(ctx, query,
		c.Name,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.Status,
		c.StartsAt,
		c.EndsAt,
		productsJSON,
		categoriesJSON,
		c.Stackable,
		c.IsPublic,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "name", c.Name)
		}
		return fmt.Errorf("update campaign: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}

	return nil
}

// UpdateStatus sets a campaign's status without touching its other fields.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE campaigns
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}

	return nil
}

// Delete removes a campaign permanently.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}

	return nil
}

// ListByStatus returns every campaign in any of the given statuses.
func (r *CampaignRepository) ListByStatus(ctx context.Context, statuses ...string) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns
		WHERE status = ANY($1)
		ORDER BY created_at ASC, id ASC`, campaignColumns)

	return r.listCampaigns(ctx, query, statuses)
}

// ListDueScheduled returns scheduled campaigns whose window has opened
// (or that have no window) and has not yet closed as of now.
func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns
		WHERE status = $1
		  AND (starts_at IS NULL OR starts_at <= $2)
		  AND (ends_at IS NULL OR ends_at > $2)
		ORDER BY created_at ASC, id ASC`, campaignColumns)

	return r.listCampaigns(ctx, query, domain.CampaignStatusScheduled, now)
}

// ListOverdueActive returns active campaigns whose end date has passed.
func (r *CampaignRepository) ListOverdueActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns
		WHERE status = $1
		  AND ends_at IS NOT NULL
		  AND ends_at <= $2
		ORDER BY created_at ASC, id ASC`, campaignColumns)

	return r.listCampaigns(ctx, query, domain.CampaignStatusActive, now)
}

// listCampaigns executes a query expected to return campaign rows without
// a total count column.
func (r *CampaignRepository) listCampaigns(ctx context.Context, query string, args ...any) ([]domain.Campaign, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows, nil)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, nil
}

// scanCampaign is a helper that executes a query expected to return a single campaign row.
func (r *CampaignRepository) scanCampaign(ctx context.Context, query string, args ...any) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		productsJSON   []byte
		categoriesJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.Status,
		&c.StartsAt,
		&c.EndsAt,
		&productsJSON,
		&categoriesJSON,
		&c.Stackable,
		&c.IsPublic,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := unmarshalScopes(&c, productsJSON, categoriesJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

// scanCampaignRow scans a single row from a multi-row campaign query.
// totalCount, when non-nil, receives the trailing count(*) OVER() column.
func scanCampaignRow(rows pgx.Rows, totalCount *int) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		productsJSON   []byte
		categoriesJSON []byte
	)

	dest := []any{
		&c.ID,
		&c.Name,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.Status,
		&c.StartsAt,
		&c.EndsAt,
		&productsJSON,
		&categoriesJSON,
		&c.Stackable,
		&c.IsPublic,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan campaign row: %w", err)
	}

	if err := unmarshalScopes(&c, productsJSON, categoriesJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

func unmarshalScopes(c *domain.Campaign, productsJSON, categoriesJSON []byte) error {
	if productsJSON != nil {
		if err := json.Unmarshal(productsJSON, &c.ApplicableProducts); err != nil {
			return fmt.Errorf("unmarshal applicable_products: %w", err)
		}
	}
	if c.ApplicableProducts == nil {
		c.ApplicableProducts = []string{}
	}

	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &c.ApplicableCategories); err != nil {
			return fmt.Errorf("unmarshal applicable_categories: %w", err)
		}
	}
	if c.ApplicableCategories == nil {
		c.ApplicableCategories = []string{}
	}

	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
