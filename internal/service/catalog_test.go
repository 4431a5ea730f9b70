package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/promotion-service/internal/domain"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

type mockProductCache struct {
	mock.Mock
}

func (m *mockProductCache) Get(ctx context.Context) ([]domain.ProductSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProductSummary), args.Error(1)
}

func (m *mockProductCache) Set(ctx context.Context, products []domain.ProductSummary) error {
	args := m.Called(ctx, products)
	return args.Error(0)
}

func (m *mockProductCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestListAvailableProducts_CacheHit(t *testing.T) {
	cache := new(mockProductCache)
	svc := NewCatalogService(newFakeCatalog(), cache, newTestLogger())
	ctx := context.Background()

	cached := []domain.ProductSummary{{ID: "p1", BasePrice: 10000, EffectivePrice: 8000}}
	cache.On("Get", ctx).Return(cached, nil)

	products, err := svc.ListAvailableProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, cached, products)
	cache.AssertNotCalled(t, "Set")
}

func TestListAvailableProducts_CacheMissFallsThrough(t *testing.T) {
	cache := new(mockProductCache)
	catalog := newFakeCatalog()
	catalog.addProduct("p1", 10000)
	svc := NewCatalogService(catalog, cache, newTestLogger())
	ctx := context.Background()

	cache.On("Get", ctx).Return(nil, apperrors.ErrNotFound)
	cache.On("Set", ctx, mock.Anything).Return(nil)

	products, err := svc.ListAvailableProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	cache.AssertExpectations(t)
}

func TestListAvailableProducts_CacheErrorFallsThrough(t *testing.T) {
	cache := new(mockProductCache)
	catalog := newFakeCatalog()
	catalog.addProduct("p1", 10000)
	svc := NewCatalogService(catalog, cache, newTestLogger())
	ctx := context.Background()

	cache.On("Get", ctx).Return(nil, errors.New("redis down"))
	cache.On("Set", ctx, mock.Anything).Return(nil)

	products, err := svc.ListAvailableProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestListAvailableProducts_NoCacheConfigured(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct("p1", 10000)
	svc := NewCatalogService(catalog, nil, newTestLogger())

	products, err := svc.ListAvailableProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
}
