// Package handler provides the HTTP and MCP surface of the POS service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"square-pos/internal/adapter"
	"square-pos/internal/model"
	"square-pos/internal/session"
)

// Config carries the handler settings that come from service configuration.
type Config struct {
	// OrderOptions are the order-level discounts and taxes a cashier may select.
	OrderOptions model.OrderOptions

	// MinClientVersion gates MCP callers the way the REST middleware gates HTTP ones.
	MinClientVersion string

	// AwaitTimeout caps how long a request waits for a preview to settle.
	AwaitTimeout time.Duration
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Registry
	orders   adapter.OrderService
	cfg      Config
	logger   *slog.Logger
}

// New creates a new Handler.
func New(sessions *session.Registry, orders adapter.OrderService, cfg Config, logger *slog.Logger) *Handler {
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 10 * time.Second
	}
	return &Handler{
		sessions: sessions,
		orders:   orders,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Carts
	mux.HandleFunc("POST /carts", h.handleCreateCart)
	mux.HandleFunc("GET /carts/{cart}", h.handleGetCart)
	mux.HandleFunc("DELETE /carts/{cart}", h.handleDeleteCart)

	// Items
	mux.HandleFunc("POST /carts/{cart}/items", h.handleAddItem)
	mux.HandleFunc("PUT /carts/{cart}/items", h.handleSyncItems)
	mux.HandleFunc("DELETE /carts/{cart}/items", h.handleClearCart)
	mux.HandleFunc("DELETE /carts/{cart}/items/{item}", h.handleRemoveItem)
	mux.HandleFunc("PUT /carts/{cart}/items/{item}/quantity", h.handleUpdateQuantity)
	mux.HandleFunc("POST /carts/{cart}/items/{item}/discounts/toggle", h.handleToggleDiscount)
	mux.HandleFunc("POST /carts/{cart}/items/{item}/taxes/toggle", h.handleToggleTax)
	mux.HandleFunc("PUT /carts/{cart}/items/{item}/discount", h.handleApplyItemDiscount)
	mux.HandleFunc("DELETE /carts/{cart}/items/{item}/discount", h.handleRemoveItemDiscount)
	mux.HandleFunc("PUT /carts/{cart}/items/{item}/tax", h.handleSetItemTax)
	mux.HandleFunc("PUT /carts/{cart}/items/{item}/exclusions/discount", h.handleExcludeDiscount)
	mux.HandleFunc("PUT /carts/{cart}/items/{item}/exclusions/tax", h.handleExcludeTax)

	// Order-level selection, pricing and submission
	mux.HandleFunc("PUT /carts/{cart}/selection", h.handleSetSelection)
	mux.HandleFunc("GET /carts/{cart}/preview", h.handleGetPreview)
	mux.HandleFunc("POST /carts/{cart}/preview", h.handleRecalculate)
	mux.HandleFunc("POST /carts/{cart}/orders", h.handleSubmitOrder)

	// Catalog
	mux.HandleFunc("GET /order-options", h.handleOrderOptions)
	mux.HandleFunc("GET /catalog/taxes", h.handleCatalogTaxes)
	mux.HandleFunc("GET /catalog/discounts", h.handleCatalogDiscounts)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{Error: newErrorBody(apiErr)})
}

// toAPIError finds the APIError in err's chain, wrapping anything else as internal.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorBody(e *model.APIError) errorBody {
	return errorBody{Code: e.Code, Message: e.Message}
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// bearerToken extracts the Square access token from the Authorization header.
// ok is false when the header is present but not a bearer credential.
func bearerToken(r *http.Request) (token string, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", true
	}
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	return credential, credential != ""
}

// === Health ===

// healthResponse is the JSON body for the health endpoints.
type healthResponse struct {
	Status string `json:"status"`
	Carts  int    `json:"carts"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Carts: h.sessions.Len()})
}
