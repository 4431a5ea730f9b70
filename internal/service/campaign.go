package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/event"
	"github.com/shopforge/promotion-service/internal/repository"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

// CampaignService implements the business logic for campaign CRUD. Status
// transitions other than draft→scheduled go through the promotion engine.
type CampaignService struct {
	repo     repository.CampaignRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(repo repository.CampaignRepository, producer *event.Producer, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// CreateCampaignInput holds the parameters for creating a campaign.
type CreateCampaignInput struct {
	Name                 string
	Description          string
	DiscountType         string
	DiscountValue        int64
	StartsAt             *time.Time
	EndsAt               *time.Time
	ApplicableProducts   []string
	ApplicableCategories []string
	Stackable            bool
	IsPublic             bool
}

// UpdateCampaignInput holds the parameters for updating a campaign. Nil
// fields are left unchanged; nil scope slices are left unchanged too, so an
// explicit empty slice is how a scope is cleared.
type UpdateCampaignInput struct {
	Name                 *string
	Description          *string
	DiscountType         *string
	DiscountValue        *int64
	Status               *string
	StartsAt             *time.Time
	EndsAt               *time.Time
	ClearWindow          bool
	ApplicableProducts   []string
	ApplicableCategories []string
	Stackable            *bool
	IsPublic             *bool
}

// CreateCampaign creates a new campaign in draft status.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("campaign name is required")
	}
	if err := validateDiscount(input.DiscountType, input.DiscountValue); err != nil {
		return nil, err
	}
	if err := validateWindow(input.StartsAt, input.EndsAt); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:                   uuid.New().String(),
		Name:                 input.Name,
		Description:          input.Description,
		DiscountType:         input.DiscountType,
		DiscountValue:        input.DiscountValue,
		Status:               domain.CampaignStatusDraft,
		StartsAt:             input.StartsAt,
		EndsAt:               input.EndsAt,
		ApplicableProducts:   input.ApplicableProducts,
		ApplicableCategories: input.ApplicableCategories,
		Stackable:            input.Stackable,
		IsPublic:             input.IsPublic,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if campaign.ApplicableProducts == nil {
		campaign.ApplicableProducts = []string{}
	}
	if campaign.ApplicableCategories == nil {
		campaign.ApplicableCategories = []string{}
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	if err := s.producer.PublishCampaignCreated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.created event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("name", campaign.Name),
	)

	return campaign, nil
}

// GetCampaign retrieves a campaign by its ID.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns a filtered, paginated list of campaigns.
func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s", *filter.Status, strings.Join(domain.ValidStatuses(), ", ")))
	}

	campaigns, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}

	return campaigns, total, nil
}

// UpdateCampaign applies partial updates to an existing campaign. Status is
// not settable here with one exception: draft→scheduled, which is a
// bookkeeping step rather than an engine transition.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperrors.InvalidInput("campaign name must not be empty")
		}
		campaign.Name = *input.Name
	}

	if input.Description != nil {
		campaign.Description = *input.Description
	}

	if input.DiscountType != nil {
		campaign.DiscountType = *input.DiscountType
	}
	if input.DiscountValue != nil {
		campaign.DiscountValue = *input.DiscountValue
	}
	if err := validateDiscount(campaign.DiscountType, campaign.DiscountValue); err != nil {
		return nil, err
	}

	if input.Status != nil && *input.Status != campaign.Status {
		if campaign.Status != domain.CampaignStatusDraft || *input.Status != domain.CampaignStatusScheduled {
			return nil, apperrors.InvalidState(fmt.Sprintf("cannot change status from %q to %q via update, use activate/expire", campaign.Status, *input.Status))
		}
		campaign.Status = domain.CampaignStatusScheduled
	}

	if input.ClearWindow {
		campaign.StartsAt = nil
		campaign.EndsAt = nil
	}
	if input.StartsAt != nil {
		campaign.StartsAt = input.StartsAt
	}
	if input.EndsAt != nil {
		campaign.EndsAt = input.EndsAt
	}
	if err := validateWindow(campaign.StartsAt, campaign.EndsAt); err != nil {
		return nil, err
	}

	if input.ApplicableProducts != nil {
		campaign.ApplicableProducts = input.ApplicableProducts
	}
	if input.ApplicableCategories != nil {
		campaign.ApplicableCategories = input.ApplicableCategories
	}

	if input.Stackable != nil {
		campaign.Stackable = *input.Stackable
	}
	if input.IsPublic != nil {
		campaign.IsPublic = *input.IsPublic
	}

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign updated",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return campaign, nil
}

// validateDiscount checks discount type and value bounds. Percentage values
// are basis points and must not exceed 100%.
func validateDiscount(discountType string, value int64) error {
	if !domain.IsValidDiscountType(discountType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s", discountType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	if value <= 0 {
		return apperrors.InvalidInput("discount value must be positive")
	}
	if discountType == domain.DiscountTypePercentage && value > domain.MaxPercentageBasisPoints {
		return apperrors.InvalidInput("percentage discount must not exceed 10000 basis points")
	}
	return nil
}

// validateWindow checks that a bounded window is ordered. Either side may be
// nil for an open-ended window.
func validateWindow(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return apperrors.InvalidInput("end date must be after start date")
	}
	return nil
}
