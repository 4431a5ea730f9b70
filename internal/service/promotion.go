package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/event"
	"github.com/shopforge/promotion-service/internal/repository"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

// ApplyResult reports the outcome of an engine pass over a product set.
// Updated counts products whose stored pricing actually changed; Skipped
// counts products that failed recompute after one retry.
type ApplyResult struct {
	Updated int `json:"products_updated"`
	Skipped int `json:"products_skipped"`
}

func (r *ApplyResult) add(other ApplyResult) {
	r.Updated += other.Updated
	r.Skipped += other.Skipped
}

// PromotionEngine owns campaign status transitions and the recomputation of
// promotional prices. All batch operations are idempotent: re-running them
// against an unchanged catalog is a no-op.
type PromotionEngine struct {
	campaigns repository.CampaignRepository
	catalog   repository.CatalogRepository
	scope     *ScopeResolver
	cache     repository.ProductCache
	producer  *event.Producer
	logger    *slog.Logger

	sweeping atomic.Bool

	// now is swappable for tests.
	now func() time.Time
}

// NewPromotionEngine creates a new promotion engine. cache may be nil when
// Redis is disabled.
func NewPromotionEngine(
	campaigns repository.CampaignRepository,
	catalog repository.CatalogRepository,
	scope *ScopeResolver,
	cache repository.ProductCache,
	producer *event.Producer,
	logger *slog.Logger,
) *PromotionEngine {
	return &PromotionEngine{
		campaigns: campaigns,
		catalog:   catalog,
		scope:     scope,
		cache:     cache,
		producer:  producer,
		logger:    logger,
		now:       time.Now,
	}
}

// Activate transitions a campaign to active and applies promotional prices
// across its scope. Manual activation bypasses the time window but never the
// state machine. Every product in scope is recomputed against all campaigns
// eligible for it, so overlaps with other active campaigns resolve correctly.
func (e *PromotionEngine) Activate(ctx context.Context, id string) (*domain.Campaign, ApplyResult, error) {
	campaign, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, ApplyResult{}, fmt.Errorf("get campaign for activation: %w", err)
	}

	if !domain.CanTransition(campaign.Status, domain.CampaignStatusActive) {
		return nil, ApplyResult{}, apperrors.InvalidState(fmt.Sprintf("cannot activate campaign in status %q", campaign.Status))
	}

	if err := e.campaigns.UpdateStatus(ctx, id, domain.CampaignStatusActive); err != nil {
		return nil, ApplyResult{}, fmt.Errorf("mark campaign active: %w", err)
	}
	campaign.Status = domain.CampaignStatusActive

	targets, err := e.scope.Resolve(ctx, campaign)
	if err != nil {
		return nil, ApplyResult{}, err
	}

	eligibleByProduct, _, err := e.eligibilityMap(ctx)
	if err != nil {
		return nil, ApplyResult{}, err
	}

	result := e.recomputeProducts(ctx, targets, eligibleByProduct)

	e.invalidateCache(ctx, result)

	if err := e.producer.PublishCampaignActivated(ctx, campaign); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish promotion.activated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}
	e.publishPricesApplied(ctx, campaign.ID, "activate", result)

	e.logger.InfoContext(ctx, "campaign activated",
		slog.String("campaign_id", campaign.ID),
		slog.Int("products_updated", result.Updated),
		slog.Int("products_skipped", result.Skipped),
	)

	return campaign, result, nil
}

// Expire transitions an active campaign to expired and retracts its
// attribution from every product that carries it. Products also attributed
// to other campaigns keep the discount the survivors still owe them.
func (e *PromotionEngine) Expire(ctx context.Context, id string) (*domain.Campaign, ApplyResult, error) {
	campaign, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, ApplyResult{}, fmt.Errorf("get campaign for expiry: %w", err)
	}

	if !domain.CanTransition(campaign.Status, domain.CampaignStatusExpired) {
		return nil, ApplyResult{}, apperrors.InvalidState(fmt.Sprintf("cannot expire campaign in status %q", campaign.Status))
	}

	if err := e.campaigns.UpdateStatus(ctx, id, domain.CampaignStatusExpired); err != nil {
		return nil, ApplyResult{}, fmt.Errorf("mark campaign expired: %w", err)
	}
	campaign.Status = domain.CampaignStatusExpired

	result, err := e.retract(ctx, id)
	if err != nil {
		return nil, ApplyResult{}, err
	}

	e.invalidateCache(ctx, result)

	if err := e.producer.PublishCampaignExpired(ctx, campaign); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish promotion.expired event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}
	e.publishPricesApplied(ctx, campaign.ID, "expire", result)

	e.logger.InfoContext(ctx, "campaign expired",
		slog.String("campaign_id", campaign.ID),
		slog.Int("products_updated", result.Updated),
		slog.Int("products_skipped", result.Skipped),
	)

	return campaign, result, nil
}

// Delete retracts a campaign's pricing from the catalog and removes the
// campaign row. Allowed from any status; a campaign that never applied
// prices simply has nothing to retract.
func (e *PromotionEngine) Delete(ctx context.Context, id string) (ApplyResult, error) {
	campaign, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("get campaign for deletion: %w", err)
	}

	result, err := e.retract(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}

	if err := e.campaigns.Delete(ctx, id); err != nil {
		return ApplyResult{}, fmt.Errorf("delete campaign: %w", err)
	}

	e.invalidateCache(ctx, result)

	if err := e.producer.PublishCampaignDeleted(ctx, id, result.Updated); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish promotion.deleted event",
			slog.String("campaign_id", id),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "campaign deleted",
		slog.String("campaign_id", id),
		slog.String("name", campaign.Name),
		slog.Int("products_reverted", result.Updated),
	)

	return result, nil
}

// ApplyAllActive recomputes promotional prices for every product touched by
// any active campaign, plus every product still carrying an attribution.
// This is the full reconciliation pass: it applies missing discounts, strips
// stale attributions and picks up category-membership drift. Safe to run at
// any time, any number of times.
func (e *PromotionEngine) ApplyAllActive(ctx context.Context) (int, ApplyResult, error) {
	eligibleByProduct, applied, err := e.eligibilityMap(ctx)
	if err != nil {
		return 0, ApplyResult{}, err
	}

	attributed, err := e.catalog.ListProductIDsWithPromotions(ctx)
	if err != nil {
		return 0, ApplyResult{}, fmt.Errorf("list products with promotions: %w", err)
	}

	targets := make([]string, 0, len(eligibleByProduct)+len(attributed))
	for id := range eligibleByProduct {
		targets = append(targets, id)
	}
	targets = append(targets, attributed...)
	targets = sortedUnique(targets)

	result := e.recomputeProducts(ctx, targets, eligibleByProduct)

	e.invalidateCache(ctx, result)
	e.publishPricesApplied(ctx, "", "reconcile", result)

	e.logger.InfoContext(ctx, "applied all active campaigns",
		slog.Int("campaigns_applied", applied),
		slog.Int("products_updated", result.Updated),
		slog.Int("products_skipped", result.Skipped),
	)

	return applied, result, nil
}

// ActivateDueScheduled activates every scheduled campaign whose window has
// opened. Failures on individual campaigns are logged and do not stop the
// pass.
func (e *PromotionEngine) ActivateDueScheduled(ctx context.Context) (int, error) {
	due, err := e.campaigns.ListDueScheduled(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list due scheduled campaigns: %w", err)
	}

	activated := 0
	for _, c := range due {
		if _, _, err := e.Activate(ctx, c.ID); err != nil {
			e.logger.ErrorContext(ctx, "failed to activate scheduled campaign",
				slog.String("campaign_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		activated++
	}

	return activated, nil
}

// SweepExpired expires every active campaign whose end date has passed.
// Single-flight: if a sweep is already running the call returns (0, nil)
// immediately.
func (e *PromotionEngine) SweepExpired(ctx context.Context) (int, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		e.logger.InfoContext(ctx, "sweep already in progress, skipping")
		return 0, nil
	}
	defer e.sweeping.Store(false)

	overdue, err := e.campaigns.ListOverdueActive(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list overdue campaigns: %w", err)
	}

	expired := 0
	for _, c := range overdue {
		if _, _, err := e.Expire(ctx, c.ID); err != nil {
			e.logger.ErrorContext(ctx, "failed to expire overdue campaign",
				slog.String("campaign_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		expired++
	}

	return expired, nil
}

// eligibilityMap resolves the scope of every currently eligible active
// campaign into a productID → campaigns map. A campaign stays eligible until
// its end date passes; an unreached start date does not disqualify it, since
// reaching active status ahead of the window takes an explicit manual
// activation.
func (e *PromotionEngine) eligibilityMap(ctx context.Context) (map[string][]domain.Campaign, int, error) {
	actives, err := e.campaigns.ListByStatus(ctx, domain.CampaignStatusActive)
	if err != nil {
		return nil, 0, fmt.Errorf("list active campaigns: %w", err)
	}

	now := e.now().UTC()
	eligibleByProduct := make(map[string][]domain.Campaign)
	eligible := 0

	for _, c := range actives {
		if c.WindowEnded(now) {
			continue
		}
		scope, err := e.scope.Resolve(ctx, &c)
		if err != nil {
			return nil, 0, err
		}
		eligible++
		for _, productID := range scope {
			eligibleByProduct[productID] = append(eligibleByProduct[productID], c)
		}
	}

	return eligibleByProduct, eligible, nil
}

// retract strips a campaign's attribution from every product carrying it and
// recomputes those products from the campaigns that remain attributed and
// still active.
func (e *PromotionEngine) retract(ctx context.Context, campaignID string) (ApplyResult, error) {
	products, err := e.catalog.ListProductIDsAttributedTo(ctx, campaignID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("list products attributed to campaign: %w", err)
	}
	if len(products) == 0 {
		return ApplyResult{}, nil
	}

	actives, err := e.campaigns.ListByStatus(ctx, domain.CampaignStatusActive)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("list active campaigns: %w", err)
	}

	now := e.now().UTC()
	activeByID := make(map[string]domain.Campaign, len(actives))
	for _, c := range actives {
		if c.ID == campaignID || c.WindowEnded(now) {
			continue
		}
		activeByID[c.ID] = c
	}

	var result ApplyResult
	for _, productID := range products {
		compute := func(p *domain.ProductPricing) domain.PricingDecision {
			var remaining []domain.Campaign
			for _, attributedID := range p.AttributedCampaigns {
				if c, ok := activeByID[attributedID]; ok {
					remaining = append(remaining, c)
				}
			}
			return domain.ResolvePricing(p.BasePrice, remaining)
		}
		result.add(e.recomputeProduct(ctx, productID, compute))
	}

	return result, nil
}

// recomputeProducts runs the conflict resolver for each product against its
// eligible campaign set. Products absent from the map resolve against an
// empty set, which clears any stale pricing.
func (e *PromotionEngine) recomputeProducts(ctx context.Context, productIDs []string, eligibleByProduct map[string][]domain.Campaign) ApplyResult {
	var result ApplyResult
	for _, productID := range productIDs {
		eligible := eligibleByProduct[productID]
		compute := func(p *domain.ProductPricing) domain.PricingDecision {
			return domain.ResolvePricing(p.BasePrice, eligible)
		}
		result.add(e.recomputeProduct(ctx, productID, compute))
	}
	return result
}

// recomputeProduct applies one pricing recompute with a single retry.
// Failures after the retry are logged and counted as skipped; a vanished
// product skips without retrying.
func (e *PromotionEngine) recomputeProduct(ctx context.Context, productID string, compute repository.PricingFunc) ApplyResult {
	changed, err := e.catalog.RecomputePricing(ctx, productID, compute)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		changed, err = e.catalog.RecomputePricing(ctx, productID, compute)
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to recompute product pricing",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return ApplyResult{Skipped: 1}
	}
	if changed {
		return ApplyResult{Updated: 1}
	}
	return ApplyResult{}
}

func (e *PromotionEngine) invalidateCache(ctx context.Context, result ApplyResult) {
	if e.cache == nil || result.Updated == 0 {
		return
	}
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.ErrorContext(ctx, "failed to invalidate product cache",
			slog.String("error", err.Error()),
		)
	}
}

func (e *PromotionEngine) publishPricesApplied(ctx context.Context, campaignID, trigger string, result ApplyResult) {
	if err := e.producer.PublishPricesApplied(ctx, campaignID, trigger, result.Updated, result.Skipped); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish promotion.prices_applied event",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
}
