package http

import (
	"log/slog"
	"net/http"

	"github.com/shopforge/promotion-service/internal/service"
)

// PromotionHandler handles HTTP requests for engine-wide operations:
// full reconciliation and the expiry sweep.
type PromotionHandler struct {
	engine *service.PromotionEngine
	logger *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(engine *service.PromotionEngine, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		engine: engine,
		logger: logger,
	}
}

type reconcileResponse struct {
	CampaignsApplied int `json:"campaigns_applied"`
	ProductsUpdated  int `json:"products_updated"`
	ProductsSkipped  int `json:"products_skipped"`
}

type sweepResponse struct {
	CampaignsActivated int `json:"campaigns_activated"`
	CampaignsExpired   int `json:"campaigns_expired"`
}

// Reconcile handles POST /api/v1/promotions/reconcile
func (h *PromotionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	applied, result, err := h.engine.ApplyAllActive(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: reconcileResponse{
		CampaignsApplied: applied,
		ProductsUpdated:  result.Updated,
		ProductsSkipped:  result.Skipped,
	}})
}

// Sweep handles POST /api/v1/promotions/sweep
func (h *PromotionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	activated, err := h.engine.ActivateDueScheduled(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	expired, err := h.engine.SweepExpired(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: sweepResponse{
		CampaignsActivated: activated,
		CampaignsExpired:   expired,
	}})
}
