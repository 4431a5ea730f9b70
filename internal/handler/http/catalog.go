package http

import (
	"log/slog"
	"net/http"

	"github.com/shopforge/promotion-service/internal/service"
)

// CatalogHandler serves the product listing used by the campaign scope picker.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ListAvailableProducts handles GET /api/v1/products/available
func (h *CatalogHandler) ListAvailableProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListAvailableProducts(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: products})
}
