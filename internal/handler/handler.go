// Package handler exposes the conversation engine and order store over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"order-engine/internal/conversation"
	"order-engine/internal/interaction"
	"order-engine/internal/model"
	"order-engine/internal/order"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine     *conversation.Engine
	orders     *order.Repository
	reconciler *order.Reconciler
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Deps are the collaborators a Handler serves. Gatherer may be nil to omit /metrics.
type Deps struct {
	Engine     *conversation.Engine
	Orders     *order.Repository
	Reconciler *order.Reconciler
	Gatherer   prometheus.Gatherer
}

// New creates a Handler.
func New(d Deps, logger *slog.Logger) *Handler {
	return &Handler{
		engine:     d.Engine,
		orders:     d.Orders,
		reconciler: d.Reconciler,
		gatherer:   d.Gatherer,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tenants/{tenant}/conversations/{conversation}/events", h.handleEvent)
	mux.HandleFunc("GET /v1/tenants/{tenant}/conversations/{conversation}", h.handleGetConversation)
	mux.HandleFunc("GET /v1/tenants/{tenant}/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /v1/tenants/{tenant}/orders/{id}/discrepancies", h.handleDiscrepancies)
	mux.HandleFunc("POST /v1/tenants/{tenant}/orders/{id}/reconcile", h.handleReconcile)

	// MCP transport for agent integrations
	mux.Handle("/mcp", h.NewMCPHandler())

	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// EventRequest is the body of an inbound conversation event.
type EventRequest struct {
	Kind   interaction.EventKind `json:"kind"`
	ID     string                `json:"id,omitempty"`
	Title  string                `json:"title,omitempty"`
	Text   string                `json:"text,omitempty"`
	Sender model.Customer        `json:"sender,omitempty"`
}

func (r EventRequest) event() interaction.Event {
	return interaction.Event{Kind: r.Kind, ID: r.ID, Title: r.Title, Text: r.Text, Sender: r.Sender}
}

// ConversationResponse is the current state of a conversation.
type ConversationResponse struct {
	TenantID       string            `json:"tenant_id"`
	ConversationID string            `json:"conversation_id"`
	State          conversation.View `json:"state"`
	Cart           model.Cart        `json:"cart"`
}

// ReconcileResponse summarizes a reconciliation pass.
type ReconcileResponse struct {
	*order.ReconcileResult
	LinesMatch  bool   `json:"lines_match"`
	LineDiff    string `json:"line_diff,omitempty"`
	TotalsMatch bool   `json:"totals_match"`
}

func newReconcileResponse(res *order.ReconcileResult) ReconcileResponse {
	out := ReconcileResponse{
		ReconcileResult: res,
		LinesMatch:      res.Lines == nil || res.Lines.IsEmpty(),
		TotalsMatch:     res.Totals.Matches(),
	}
	if !out.LinesMatch {
		out.LineDiff = res.Lines.String()
	}
	return out
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	out, err := h.engine.Handle(r.Context(), r.PathValue("tenant"), r.PathValue("conversation"), req.event())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	tenant, conv := r.PathValue("tenant"), r.PathValue("conversation")
	view, cart, ok := h.engine.State(tenant, conv)
	if !ok {
		h.writeError(w, model.NewNotFoundError("conversation"))
		return
	}
	h.writeJSON(w, http.StatusOK, ConversationResponse{
		TenantID:       tenant,
		ConversationID: conv,
		State:          view,
		Cart:           cart,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.orders.Get(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ord)
}

func (h *Handler) handleDiscrepancies(w http.ResponseWriter, r *http.Request) {
	ord, err := h.orders.Get(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	found, err := h.orders.Discrepancies(r.Context(), ord.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if found == nil {
		found = []order.Discrepancy{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"order_id": ord.ID, "discrepancies": found})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Reconcile(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newReconcileResponse(res))
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.engine.Sessions().Len()})
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
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// toAPIError finds the APIError in err's chain. Anything else is logged and
// hidden behind a generic internal error.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			h.logger.Error("request failed", slog.String("error", err.Error()))
		}
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from request body into v.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose decoder details to the client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
