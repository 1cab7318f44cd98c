package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/middleware"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
)

// RevisionServicer defines the service methods needed by revision handlers.
// Satisfied by *service.RevisionService.
type RevisionServicer interface {
	SubmitRevision(ctx context.Context, req service.SubmitRevisionRequest) (*service.RevisionResult, error)
}

// RevisionStore defines the database methods needed by revision read handlers.
type RevisionStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListRevisionsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderRevision, error)
}

// RevisionHandler handles the revision ledger endpoints.
type RevisionHandler struct {
	svc   RevisionServicer
	store RevisionStore
	hub   Broadcaster
}

// NewRevisionHandler creates a new RevisionHandler.
func NewRevisionHandler(svc RevisionServicer, store RevisionStore, hub Broadcaster) *RevisionHandler {
	return &RevisionHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers revision endpoints on the given Chi router.
// Expected to be mounted at /outlets/{oid}/orders/{id}/revisions
func (h *RevisionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Get("/", h.List)
}

// --- Request / Response types ---

type submitRevisionRequest struct {
	BaseVersion int32               `json:"base_version"`
	Operations  []service.Operation `json:"operations"`
	ReasonCode  string              `json:"reason_code"`
	ReasonNote  string              `json:"reason_note"`
	ApprovedBy  string              `json:"approved_by"`
}

type revisionResponse struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	VersionFrom    int32           `json:"version_from"`
	VersionTo      int32           `json:"version_to"`
	ReasonCode     string          `json:"reason_code"`
	ReasonNote     *string         `json:"reason_note"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	ApprovedBy     *string         `json:"approved_by"`
	DeltaAmount    string          `json:"delta_amount"`
	Operations     json.RawMessage `json:"operations"`
	IdempotencyKey *string         `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
}

type revisionDiffResponse struct {
	Added   []lineResponse `json:"added"`
	Removed []lineResponse `json:"removed"`
	Updated []lineResponse `json:"updated"`
}

type submitRevisionResponse struct {
	Revision revisionResponse          `json:"revision"`
	Order    orderResponse             `json:"order"`
	Diff     revisionDiffResponse      `json:"diff"`
	Effects  service.AllocationEffects `json:"payment_effects"`
	Replayed bool                      `json:"replayed"`
}

// --- Handlers ---

// Submit handles POST /outlets/{oid}/orders/{id}/revisions.
// The Idempotency-Key header makes retries safe: a key the order has already
// seen returns the original revision with replayed=true.
func (h *RevisionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req submitRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Operations) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "operations are required"})
		return
	}
	if req.ReasonCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason_code is required"})
		return
	}

	result, err := h.svc.SubmitRevision(r.Context(), service.SubmitRevisionRequest{
		OrderID:        orderID,
		OutletID:       outletID,
		BaseVersion:    req.BaseVersion,
		Operations:     req.Operations,
		ReasonCode:     req.ReasonCode,
		ReasonNote:     req.ReasonNote,
		CreatedBy:      claims.UserID,
		ApprovedBy:     req.ApprovedBy,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		status, ok := revisionErrorStatus(err)
		if !ok {
			log.Printf("ERROR: submit revision: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	resp := submitRevisionResponse{
		Revision: dbRevisionToResponse(result.Revision),
		Order:    dbOrderToResponse(result.Order),
		Diff: revisionDiffResponse{
			Added:   workingLinesToResponse(result.Diff.Added),
			Removed: workingLinesToResponse(result.Diff.Removed),
			Updated: workingLinesToResponse(result.Diff.Updated),
		},
		Effects:  result.Effects,
		Replayed: result.Replayed,
	}

	if !result.Replayed {
		if event, err := ws.NewEvent(ws.EventOrderRevised, resp); err == nil {
			h.hub.BroadcastToOutlet(outletID, event)
		}
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// List handles GET /outlets/{oid}/orders/{id}/revisions.
func (h *RevisionHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if _, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, OutletID: outletID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	revisions, err := h.store.ListRevisionsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list revisions: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]revisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		resp = append(resp, dbRevisionToResponse(rev))
	}
	writeJSON(w, http.StatusOK, map[string][]revisionResponse{"revisions": resp})
}

// --- Helpers ---

// revisionErrorStatus maps engine errors to HTTP statuses. Conflicts with the
// live order state (kitchen commitment, stale version, stale quantity) are
// 409; references to things that no longer exist are 422 so the client knows
// to refresh its snapshot rather than fix the request.
func revisionErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrCatalogItemNotFound):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, service.ErrItemAlreadyCommitted),
		errors.Is(err, service.ErrOrderVersionMismatch),
		errors.Is(err, service.ErrQuantityMismatch),
		errors.Is(err, service.ErrOrderCancelled):
		return http.StatusConflict, true
	case errors.Is(err, service.ErrEmptyOperations),
		errors.Is(err, service.ErrInvalidOperation),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidLineID),
		errors.Is(err, service.ErrInvalidCatalogItemID),
		errors.Is(err, service.ErrInvalidReason):
		return http.StatusBadRequest, true
	}
	return 0, false
}

func dbRevisionToResponse(rev database.OrderRevision) revisionResponse {
	resp := revisionResponse{
		ID:          rev.ID,
		OrderID:     rev.OrderID,
		VersionFrom: rev.VersionFrom,
		VersionTo:   rev.VersionTo,
		ReasonCode:  string(rev.ReasonCode),
		ReasonNote:  textPtr(rev.ReasonNote),
		CreatedBy:   rev.CreatedBy,
		DeltaAmount: numericToString(rev.DeltaAmount),
		Operations:  json.RawMessage(rev.Operations),
		CreatedAt:   rev.CreatedAt,
	}
	if rev.ApprovedBy.Valid {
		s := uuid.UUID(rev.ApprovedBy.Bytes).String()
		resp.ApprovedBy = &s
	}
	if rev.IdempotencyKey.Valid {
		resp.IdempotencyKey = &rev.IdempotencyKey.String
	}
	return resp
}

func workingLinesToResponse(lines []service.Line) []lineResponse {
	resp := make([]lineResponse, 0, len(lines))
	for _, l := range lines {
		lr := lineResponse{
			ID:            l.ID,
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			BasePrice:     l.BasePrice.StringFixed(2),
			Subtotal:      l.Subtotal.StringFixed(2),
			BatchNumber:   l.BatchNumber,
			KitchenStatus: string(l.KitchenStatus),
		}
		if l.Notes != "" {
			lr.Notes = &l.Notes
		}
		for _, m := range l.Modifiers {
			lr.Modifiers = append(lr.Modifiers, modifierResponse{
				Kind:  string(m.Kind),
				Name:  m.Name,
				Price: m.Price.StringFixed(2),
			})
		}
		resp = append(resp, lr)
	}
	return resp
}
