package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopforge/promotion-service/internal/domain"
	pkgkafka "github.com/shopforge/promotion-service/pkg/kafka"
)

// Kafka topic constants for promotion domain events.
const (
	TopicCampaignCreated   = "commerce.promotion.created"
	TopicCampaignUpdated   = "commerce.promotion.updated"
	TopicCampaignActivated = "commerce.promotion.activated"
	TopicCampaignExpired   = "commerce.promotion.expired"
	TopicCampaignDeleted   = "commerce.promotion.deleted"
	TopicPricesApplied     = "commerce.promotion.prices_applied"
)

// Aggregate type constant.
const AggregateTypeCampaign = "campaign"

// Source identifier for events originating from the promotion service.
const SourcePromotionService = "promotion-service"

// CampaignEventData is the payload for campaign lifecycle events.
type CampaignEventData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Status        string `json:"status"`
	Stackable     bool   `json:"stackable"`
}

// CampaignDeletedData is the payload for a promotion.deleted event.
type CampaignDeletedData struct {
	ID               string `json:"id"`
	ProductsReverted int    `json:"products_reverted"`
}

// PricesAppliedData is the payload for a promotion.prices_applied event,
// emitted after any engine pass that rewrote promotional prices.
type PricesAppliedData struct {
	CampaignID      string `json:"campaign_id,omitempty"`
	Trigger         string `json:"trigger"`
	ProductsUpdated int    `json:"products_updated"`
	ProductsSkipped int    `json:"products_skipped"`
}

// Producer publishes promotion domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the promotion service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCampaignCreated publishes a promotion.created event.
func (p *Producer) PublishCampaignCreated(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishLifecycle(ctx, TopicCampaignCreated, campaign)
}

// PublishCampaignUpdated publishes a promotion.updated event.
func (p *Producer) PublishCampaignUpdated(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishLifecycle(ctx, TopicCampaignUpdated, campaign)
}

// PublishCampaignActivated publishes a promotion.activated event.
func (p *Producer) PublishCampaignActivated(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishLifecycle(ctx, TopicCampaignActivated, campaign)
}

// PublishCampaignExpired publishes a promotion.expired event.
func (p *Producer) PublishCampaignExpired(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishLifecycle(ctx, TopicCampaignExpired, campaign)
}

// PublishCampaignDeleted publishes a promotion.deleted event.
func (p *Producer) PublishCampaignDeleted(ctx context.Context, campaignID string, productsReverted int) error {
	data := CampaignDeletedData{
		ID:               campaignID,
		ProductsReverted: productsReverted,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignDeleted, campaignID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create promotion.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignDeleted, event); err != nil {
		return fmt.Errorf("publish promotion.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published promotion.deleted event",
		slog.String("campaign_id", campaignID),
		slog.Int("products_reverted", productsReverted),
	)

	return nil
}

// PublishPricesApplied publishes a promotion.prices_applied event. campaignID
// is empty for full reconciliation passes.
func (p *Producer) PublishPricesApplied(ctx context.Context, campaignID, trigger string, updated, skipped int) error {
	data := PricesAppliedData{
		CampaignID:      campaignID,
		Trigger:         trigger,
		ProductsUpdated: updated,
		ProductsSkipped: skipped,
	}

	aggregateID := campaignID
	if aggregateID == "" {
		aggregateID = "catalog"
	}

	event, err := pkgkafka.NewEvent(TopicPricesApplied, aggregateID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create promotion.prices_applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicPricesApplied, event); err != nil {
		return fmt.Errorf("publish promotion.prices_applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published promotion.prices_applied event",
		slog.String("trigger", trigger),
		slog.Int("products_updated", updated),
		slog.Int("products_skipped", skipped),
	)

	return nil
}

func (p *Producer) publishLifecycle(ctx context.Context, topic string, campaign *domain.Campaign) error {
	data := CampaignEventData{
		ID:            campaign.ID,
		Name:          campaign.Name,
		DiscountType:  campaign.DiscountType,
		DiscountValue: campaign.DiscountValue,
		Status:        campaign.Status,
		Stackable:     campaign.Stackable,
	}

	event, err := pkgkafka.NewEvent(topic, campaign.ID, AggregateTypeCampaign, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published campaign event",
		slog.String("topic", topic),
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return nil
}
