package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopforge/promotion-service/internal/domain"
	"github.com/shopforge/promotion-service/internal/repository"
	"github.com/shopforge/promotion-service/internal/service"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
	"github.com/shopforge/promotion-service/pkg/pagination"
	"github.com/shopforge/promotion-service/pkg/validator"
)

// CampaignHandler handles HTTP requests for campaign endpoints, including
// the engine-backed lifecycle transitions.
type CampaignHandler struct {
	campaigns *service.CampaignService
	engine    *service.PromotionEngine
	logger    *slog.Logger
}

// NewCampaignHandler creates a new campaign HTTP handler.
func NewCampaignHandler(campaigns *service.CampaignService, engine *service.PromotionEngine, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		engine:    engine,
		logger:    logger,
	}
}

// --- Request DTOs ---

// CreateCampaignRequest is the JSON request body for creating a campaign.
type CreateCampaignRequest struct {
	Name                 string   `json:"name" validate:"required,min=1,max=255"`
	Description          string   `json:"description"`
	DiscountType         string   `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue        int64    `json:"discount_value" validate:"required,gt=0"`
	StartsAt             *string  `json:"starts_at"`
	EndsAt               *string  `json:"ends_at"`
	ApplicableProducts   []string `json:"applicable_products"`
	ApplicableCategories []string `json:"applicable_categories"`
	Stackable            bool     `json:"stackable"`
	IsPublic             bool     `json:"is_public"`
}

// UpdateCampaignRequest is the JSON request body for updating a campaign.
type UpdateCampaignRequest struct {
	Name                 *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description          *string  `json:"description"`
	DiscountType         *string  `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue        *int64   `json:"discount_value" validate:"omitempty,gt=0"`
	Status               *string  `json:"status" validate:"omitempty,oneof=draft scheduled active expired"`
	StartsAt             *string  `json:"starts_at"`
	EndsAt               *string  `json:"ends_at"`
	ClearWindow          bool     `json:"clear_window"`
	ApplicableProducts   []string `json:"applicable_products"`
	ApplicableCategories []string `json:"applicable_categories"`
	Stackable            *bool    `json:"stackable"`
	IsPublic             *bool    `json:"is_public"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// listResponse is the standardized paginated campaign listing.
type listResponse = pagination.Result[domain.Campaign]

type lifecycleResponse struct {
	Campaign        any `json:"campaign"`
	ProductsUpdated int `json:"products_updated"`
	ProductsSkipped int `json:"products_skipped"`
}

type deleteResponse struct {
	RetractedProducts int `json:"retracted_products"`
}

// --- Handlers ---

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	startsAt, ok := h.parseTime(w, req.StartsAt, "starts_at")
	if !ok {
		return
	}
	endsAt, ok := h.parseTime(w, req.EndsAt, "ends_at")
	if !ok {
		return
	}

	input := &service.CreateCampaignInput{
		Name:                 req.Name,
		Description:          req.Description,
		DiscountType:         req.DiscountType,
		DiscountValue:        req.DiscountValue,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
		Stackable:            req.Stackable,
		IsPublic:             req.IsPublic,
	}

	campaign, err := h.campaigns.CreateCampaign(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: campaign})
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.CampaignFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
		Search:  r.URL.Query().Get("q"),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	campaigns, total, err := h.campaigns.ListCampaigns(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(campaigns, total, params))
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	campaign, err := h.campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaign})
}

// UpdateCampaign handles PUT /api/v1/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	var req UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	startsAt, ok := h.parseTime(w, req.StartsAt, "starts_at")
	if !ok {
		return
	}
	endsAt, ok := h.parseTime(w, req.EndsAt, "ends_at")
	if !ok {
		return
	}

	input := &service.UpdateCampaignInput{
		Name:                 req.Name,
		Description:          req.Description,
		DiscountType:         req.DiscountType,
		DiscountValue:        req.DiscountValue,
		Status:               req.Status,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		ClearWindow:          req.ClearWindow,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
		Stackable:            req.Stackable,
		IsPublic:             req.IsPublic,
	}

	campaign, err := h.campaigns.UpdateCampaign(r.Context(), id, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaign})
}

// DeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	result, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: deleteResponse{RetractedProducts: result.Updated}})
}

// ActivateCampaign handles POST /api/v1/campaigns/{id}/activate
func (h *CampaignHandler) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	campaign, result, err := h.engine.Activate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: lifecycleResponse{
		Campaign:        campaign,
		ProductsUpdated: result.Updated,
		ProductsSkipped: result.Skipped,
	}})
}

// ExpireCampaign handles POST /api/v1/campaigns/{id}/expire
func (h *CampaignHandler) ExpireCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	campaign, result, err := h.engine.Expire(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: lifecycleResponse{
		Campaign:        campaign,
		ProductsUpdated: result.Updated,
		ProductsSkipped: result.Skipped,
	}})
}

// --- Helpers ---

// parseTime parses an optional RFC3339 field, writing a 400 on failure.
func (h *CampaignHandler) parseTime(w http.ResponseWriter, value *string, field string) (*time.Time, bool) {
	if value == nil {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: field + " must be in RFC3339 format"},
		})
		return nil, false
	}
	return &t, true
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, h.logger)
}

func (h *CampaignHandler) writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
