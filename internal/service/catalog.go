package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

// CatalogService serves product listings to the campaign scope picker,
// reading through the Redis cache when one is configured.
type CatalogService struct {
	catalog repository.CatalogRepository
	cache   repository.ProductCache
	logger  *slog.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil when
// Redis is disabled.
func NewCatalogService(catalog repository.CatalogRepository, cache repository.ProductCache, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		cache:   cache,
		logger:  logger,
	}
}

// ListAvailableProducts returns published product summaries with their
// effective prices. Cache failures fall through to postgres.
func (s *CatalogService) ListAvailableProducts(ctx context.Context) ([]domain.ProductSummary, error) {
	if s.cache != nil {
		products, err := s.cache.Get(ctx)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "product cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	products, err := s.catalog.ListAvailableProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, products); err != nil {
			s.logger.ErrorContext(ctx, "product cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return products, nil
}
