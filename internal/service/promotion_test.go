package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

// --- In-memory catalog fake ---
//
// The engine's batch behavior (idempotence, partial retraction, drift repair)
// depends on pricing state evolving across calls, so the catalog side uses a
// small in-memory fake instead of expectation mocks.

type fakeProduct struct {
	pricing    domain.ProductPricing
	published  bool
	categories []string
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*fakeProduct
	failures map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: make(map[string]*fakeProduct),
		failures: make(map[string]int),
	}
}

func (f *fakeCatalog) addProduct(id string, basePrice int64, categories ...string) {
	f.products[id] = &fakeProduct{
		pricing: domain.ProductPricing{
			ProductID:           id,
			BasePrice:           basePrice,
			AttributedCampaigns: []string{},
		},
		published:  true,
		categories: categories,
	}
}

func (f *fakeCatalog) setPricing(id string, price int64, attributed ...string) {
	p := f.products[id]
	p.pricing.PromotionalPrice = &price
	p.pricing.AttributedCampaigns = attributed
}

func (f *fakeCatalog) pricing(id string) domain.ProductPricing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].pricing
}

func (f *fakeCatalog) FilterExistingProductIDs(_ context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.published {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListProductIDsByCategories(_ context.Context, categoryIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for id, p := range f.products {
		if !p.published {
			continue
		}
		for _, c := range p.categories {
			if slices.Contains(categoryIDs, c) {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListPublishedProductIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for id, p := range f.products {
		if p.published {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListProductIDsAttributedTo(_ context.Context, campaignID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for id, p := range f.products {
		if slices.Contains(p.pricing.AttributedCampaigns, campaignID) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListProductIDsWithPromotions(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for id, p := range f.products {
		if len(p.pricing.AttributedCampaigns) > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeCatalog) RecomputePricing(_ context.Context, productID string, compute repository.PricingFunc) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := f.failures[productID]; n > 0 {
		f.failures[productID] = n - 1
		return false, errors.New("storage unavailable")
	}

	p, ok := f.products[productID]
	if !ok {
		return false, apperrors.NotFound("product", productID)
	}

	current := p.pricing
	current.AttributedCampaigns = slices.Clone(current.AttributedCampaigns)
	decision := compute(&current)

	changed := !samePricing(p.pricing, decision)
	if changed {
		p.pricing.PromotionalPrice = decision.PromotionalPrice
		p.pricing.AttributedCampaigns = decision.AttributedCampaigns
	}
	return changed, nil
}

func (f *fakeCatalog) ListAvailableProducts(_ context.Context) ([]domain.ProductSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ProductSummary{}
	for id, p := range f.products {
		if !p.published {
			continue
		}
		out = append(out, domain.ProductSummary{
			ID:             id,
			BasePrice:      p.pricing.BasePrice,
			EffectivePrice: p.pricing.EffectivePrice(),
			CategoryIDs:    p.categories,
		})
	}
	return out, nil
}

func samePricing(p domain.ProductPricing, d domain.PricingDecision) bool {
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

// --- Helpers ---

var engineNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(repo *mockCampaignRepository, catalog *fakeCatalog) *PromotionEngine {
	logger := newTestLogger()
	engine := NewPromotionEngine(repo, catalog, NewScopeResolver(catalog, logger), nil, newTestProducer(), logger)
	engine.now = func() time.Time { return engineNow }
	return engine
}

func draftCampaign(id string, products ...string) *domain.Campaign {
	return &domain.Campaign{
		ID:                   id,
		Name:                 id,
		DiscountType:         domain.DiscountTypePercentage,
		DiscountValue:        2000,
		Status:               domain.CampaignStatusDraft,
		ApplicableProducts:   products,
		ApplicableCategories: []string{},
		CreatedAt:            engineNow.Add(-time.Hour),
	}
}

func asActive(c *domain.Campaign) domain.Campaign {
	active := *c
	active.Status = domain.CampaignStatusActive
	return active
}

// --- Activate ---

func TestActivate_AppliesPromotionalPrices(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.addProduct("p2", 5000)
	catalog.addProduct("untouched", 3000)

	c := draftCampaign("c1", "p1", "p2")
	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	campaign, result, err := engine.Activate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	p1 := catalog.pricing("p1")
	require.NotNil(t, p1.PromotionalPrice)
	assert.Equal(t, int64(8000), *p1.PromotionalPrice)
	assert.Equal(t, []string{"c1"}, p1.AttributedCampaigns)

	assert.Nil(t, catalog.pricing("untouched").PromotionalPrice)
	repo.AssertExpectations(t)
}

func TestActivate_IsIdempotentThroughReconcile(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	c := draftCampaign("c1", "p1")
	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	_, first, err := engine.Activate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)

	priceAfterFirst := *catalog.pricing("p1").PromotionalPrice

	applied, second, err := engine.ApplyAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, priceAfterFirst, *catalog.pricing("p1").PromotionalPrice)
}

func TestActivate_ManualBypassesWindow(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	c := draftCampaign("c1", "p1")
	futureStart := engineNow.Add(24 * time.Hour)
	c.StartsAt = &futureStart

	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	_, result, err := engine.Activate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.NotNil(t, catalog.pricing("p1").PromotionalPrice)
}

func TestActivate_RejectsExpiredCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	engine := newTestEngine(repo, newFakeCatalog())
	ctx := context.Background()

	c := draftCampaign("c1")
	c.Status = domain.CampaignStatusExpired
	repo.On("GetByID", ctx, "c1").Return(c, nil)

	_, _, err := engine.Activate(ctx, "c1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestActivate_OverlapResolvesAgainstAllActive(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	// A weaker campaign already applied to p1.
	existing := draftCampaign("weak", "p1")
	existingActive := asActive(existing)
	existingActive.DiscountValue = 1000
	catalog.setPricing("p1", 9000, "weak")

	// Activating a deeper non-stackable discount must take over, not stack.
	incoming := draftCampaign("strong", "p1")
	incoming.DiscountValue = 3000

	repo.On("GetByID", ctx, "strong").Return(incoming, nil)
	repo.On("UpdateStatus", ctx, "strong", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).
		Return([]domain.Campaign{existingActive, asActive(incoming)}, nil)

	_, result, err := engine.Activate(ctx, "strong")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	p1 := catalog.pricing("p1")
	require.NotNil(t, p1.PromotionalPrice)
	assert.Equal(t, int64(7000), *p1.PromotionalPrice)
	assert.Equal(t, []string{"strong"}, p1.AttributedCampaigns)
}

// --- Expire / Delete ---

func TestExpire_PartialRetractionKeepsSurvivor(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	expiring := draftCampaign("a", "p1")
	expiring.Status = domain.CampaignStatusActive

	survivor := asActive(draftCampaign("b", "p1"))
	survivor.DiscountType = domain.DiscountTypeFixed
	survivor.DiscountValue = 500
	survivor.Stackable = true

	// p1 currently carries both: 20% from "a" then 500 off from "b".
	catalog.setPricing("p1", 7500, "a", "b")

	repo.On("GetByID", ctx, "a").Return(expiring, nil)
	repo.On("UpdateStatus", ctx, "a", domain.CampaignStatusExpired).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{survivor}, nil)

	_, result, err := engine.Expire(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	p1 := catalog.pricing("p1")
	require.NotNil(t, p1.PromotionalPrice)
	assert.Equal(t, int64(9500), *p1.PromotionalPrice)
	assert.Equal(t, []string{"b"}, p1.AttributedCampaigns)
}

func TestExpire_LastCampaignRestoresBasePrice(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.setPricing("p1", 8000, "a")

	expiring := draftCampaign("a", "p1")
	expiring.Status = domain.CampaignStatusActive

	repo.On("GetByID", ctx, "a").Return(expiring, nil)
	repo.On("UpdateStatus", ctx, "a", domain.CampaignStatusExpired).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{}, nil)

	_, result, err := engine.Expire(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	p1 := catalog.pricing("p1")
	assert.Nil(t, p1.PromotionalPrice)
	assert.Empty(t, p1.AttributedCampaigns)
}

func TestExpire_RejectsDraftCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	engine := newTestEngine(repo, newFakeCatalog())
	ctx := context.Background()

	repo.On("GetByID", ctx, "c1").Return(draftCampaign("c1"), nil)

	_, _, err := engine.Expire(ctx, "c1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestDelete_CampaignWithNoAttributions(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	repo.On("GetByID", ctx, "c1").Return(draftCampaign("c1"), nil)
	repo.On("Delete", ctx, "c1").Return(nil)

	result, err := engine.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	repo.AssertExpectations(t)
}

func TestDelete_ActiveCampaignRetractsFirst(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.setPricing("p1", 8000, "c1")

	c := draftCampaign("c1", "p1")
	c.Status = domain.CampaignStatusActive

	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)
	repo.On("Delete", ctx, "c1").Return(nil)

	result, err := engine.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Nil(t, catalog.pricing("p1").PromotionalPrice)
}

// --- ApplyAllActive ---

func TestApplyAllActive_RepairsCategoryDrift(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	// p1 left the category after the campaign applied; p2 joined it.
	catalog.addProduct("p1", 10000)
	catalog.setPricing("p1", 8000, "summer")
	catalog.addProduct("p2", 6000, "cat-summer")

	c := draftCampaign("summer")
	c.ApplicableProducts = []string{}
	c.ApplicableCategories = []string{"cat-summer"}

	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	applied, result, err := engine.ApplyAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 2, result.Updated)

	p1 := catalog.pricing("p1")
	assert.Nil(t, p1.PromotionalPrice)
	assert.Empty(t, p1.AttributedCampaigns)

	p2 := catalog.pricing("p2")
	require.NotNil(t, p2.PromotionalPrice)
	assert.Equal(t, int64(4800), *p2.PromotionalPrice)
	assert.Equal(t, []string{"summer"}, p2.AttributedCampaigns)
}

func TestApplyAllActive_SkipsEndedCampaigns(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.setPricing("p1", 8000, "ended")

	ended := asActive(draftCampaign("ended", "p1"))
	endedAt := engineNow.Add(-time.Hour)
	ended.EndsAt = &endedAt

	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{ended}, nil)

	applied, result, err := engine.ApplyAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, result.Updated)
	assert.Nil(t, catalog.pricing("p1").PromotionalPrice)
}

// --- Partial failures ---

func TestActivate_RetriesOnceThenSkips(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.addProduct("p2", 10000)
	catalog.addProduct("p3", 10000)
	catalog.failures["p1"] = 1 // first attempt fails, retry succeeds
	catalog.failures["p2"] = 2 // both attempts fail

	c := draftCampaign("c1", "p1", "p2", "p3")
	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	_, result, err := engine.Activate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	require.NotNil(t, catalog.pricing("p1").PromotionalPrice)
	assert.Nil(t, catalog.pricing("p2").PromotionalPrice)
	require.NotNil(t, catalog.pricing("p3").PromotionalPrice)
}

// --- Sweeps ---

func TestSweepExpired_NothingOverdue(t *testing.T) {
	repo := new(mockCampaignRepository)
	engine := newTestEngine(repo, newFakeCatalog())
	ctx := context.Background()

	repo.On("ListOverdueActive", ctx, engineNow).Return([]domain.Campaign{}, nil)

	expired, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestSweepExpired_ExpiresOverdueCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)
	catalog.setPricing("p1", 8000, "c1")

	c := draftCampaign("c1", "p1")
	c.Status = domain.CampaignStatusActive
	endedAt := engineNow.Add(-time.Hour)
	c.EndsAt = &endedAt

	repo.On("ListOverdueActive", ctx, engineNow).Return([]domain.Campaign{*c}, nil)
	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusExpired).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{}, nil)

	expired, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Nil(t, catalog.pricing("p1").PromotionalPrice)
}

func TestSweepExpired_SingleFlight(t *testing.T) {
	repo := new(mockCampaignRepository)
	engine := newTestEngine(repo, newFakeCatalog())

	engine.sweeping.Store(true)

	expired, err := engine.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	repo.AssertNotCalled(t, "ListOverdueActive")
}

func TestActivateDueScheduled_ActivatesDueCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	catalog := newFakeCatalog()
	engine := newTestEngine(repo, catalog)
	ctx := context.Background()

	catalog.addProduct("p1", 10000)

	c := draftCampaign("c1", "p1")
	c.Status = domain.CampaignStatusScheduled
	startedAt := engineNow.Add(-time.Hour)
	c.StartsAt = &startedAt

	repo.On("ListDueScheduled", ctx, engineNow).Return([]domain.Campaign{*c}, nil)
	repo.On("GetByID", ctx, "c1").Return(c, nil)
	repo.On("UpdateStatus", ctx, "c1", domain.CampaignStatusActive).Return(nil)
	repo.On("ListByStatus", ctx, []string{domain.CampaignStatusActive}).Return([]domain.Campaign{asActive(c)}, nil)

	activated, err := engine.ActivateDueScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)
	require.NotNil(t, catalog.pricing("p1").PromotionalPrice)
}
