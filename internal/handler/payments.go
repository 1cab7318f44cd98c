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
	"github.com/sajian-pos/api/internal/enum"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	SettlePayment(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error)
	CaptureAdjustment(ctx context.Context, req service.CaptureAdjustmentRequest) (*service.CaptureResult, error)
}

// PaymentStore defines the database methods needed by payment read handlers.
type PaymentStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	ListPaymentAdjustmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.PaymentAdjustment, error)
}

// PaymentHandler handles payment and adjustment endpoints.
type PaymentHandler struct {
	svc   PaymentServicer
	store PaymentStore
	hub   Broadcaster
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, store PaymentStore, hub Broadcaster) *PaymentHandler {
	return &PaymentHandler{svc: svc, store: store, hub: hub}
}

// --- Request / Response types ---

type paymentResponse struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"order_id"`
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	Amount           string     `json:"amount"`
	PaymentType      string     `json:"payment_type"`
	IsAdjustment     bool       `json:"is_adjustment"`
	Direction        *string    `json:"direction"`
	RelatedPaymentID *string    `json:"related_payment_id"`
	RevisionID       *string    `json:"revision_id"`
	ReferenceNumber  *string    `json:"reference_number"`
	PaidAt           *time.Time `json:"paid_at"`
	ProcessedBy      uuid.UUID  `json:"processed_by"`
	CreatedAt        time.Time  `json:"created_at"`
}

type adjustmentResponse struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	RevisionID uuid.UUID `json:"revision_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	Direction  string    `json:"direction"`
	Amount     string    `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type paymentListResponse struct {
	Payments    []paymentResponse    `json:"payments"`
	Adjustments []adjustmentResponse `json:"adjustments"`
}

type settleResponse struct {
	Payment        paymentResponse `json:"payment"`
	OrderCompleted bool            `json:"order_completed"`
}

type captureRequest struct {
	Outcome         string `json:"outcome"`
	Method          string `json:"method"`
	ReferenceNumber string `json:"reference_number"`
}

type captureResponse struct {
	Adjustment     adjustmentResponse `json:"adjustment"`
	Payment        paymentResponse    `json:"payment"`
	OrderCompleted bool               `json:"order_completed"`
}

// --- Handlers ---

// List handles GET /outlets/{oid}/orders/{id}/payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
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

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	adjustments, err := h.store.ListPaymentAdjustmentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list adjustments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := paymentListResponse{
		Payments:    dbPaymentsToResponse(payments),
		Adjustments: []adjustmentResponse{},
	}
	for _, a := range adjustments {
		resp.Adjustments = append(resp.Adjustments, dbAdjustmentToResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Settle handles POST /outlets/{oid}/payments/{pid}/settle.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(body.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	result, err := h.svc.SettlePayment(r.Context(), service.SettlePaymentRequest{
		OutletID:  outletID,
		OrderID:   orderID,
		PaymentID: paymentID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrPaymentNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrPaymentNotPending):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: settle payment: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := settleResponse{
		Payment:        dbPaymentToResponse(result.Payment),
		OrderCompleted: result.OrderCompleted,
	}
	if event, err := ws.NewEvent(ws.EventPaymentUpdated, resp); err == nil {
		h.hub.BroadcastToOutlet(outletID, event)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Capture handles POST /outlets/{oid}/adjustments/{aid}/capture.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}
	adjustmentID, err := uuid.Parse(chi.URLParam(r, "aid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid adjustment ID"})
		return
	}

	var req struct {
		OrderID string `json:"order_id"`
		captureRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	result, err := h.svc.CaptureAdjustment(r.Context(), service.CaptureAdjustmentRequest{
		OutletID:        outletID,
		OrderID:         orderID,
		AdjustmentID:    adjustmentID,
		Outcome:         enum.PaymentStatus(req.Outcome),
		Method:          enum.PaymentMethod(req.Method),
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrAdjustmentNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrAdjustmentNotPending), errors.Is(err, service.ErrAdjustmentNotCharge):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidCaptureOutcome):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: capture adjustment: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := captureResponse{
		Adjustment:     dbAdjustmentToResponse(result.Adjustment),
		Payment:        dbPaymentToResponse(result.Payment),
		OrderCompleted: result.OrderCompleted,
	}
	if event, err := ws.NewEvent(ws.EventPaymentUpdated, resp); err == nil {
		h.hub.BroadcastToOutlet(outletID, event)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func dbPaymentToResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Method:          string(p.Method),
		Status:          string(p.Status),
		Amount:          numericToString(p.Amount),
		PaymentType:     string(p.PaymentType),
		IsAdjustment:    p.IsAdjustment,
		Direction:       textPtr(p.Direction),
		ReferenceNumber: textPtr(p.ReferenceNumber),
		ProcessedBy:     p.ProcessedBy,
		CreatedAt:       p.CreatedAt,
	}
	if p.RelatedPaymentID.Valid {
		s := uuid.UUID(p.RelatedPaymentID.Bytes).String()
		resp.RelatedPaymentID = &s
	}
	if p.RevisionID.Valid {
		s := uuid.UUID(p.RevisionID.Bytes).String()
		resp.RevisionID = &s
	}
	if p.PaidAt.Valid {
		resp.PaidAt = &p.PaidAt.Time
	}
	return resp
}

func dbPaymentsToResponse(payments []database.Payment) []paymentResponse {
	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, dbPaymentToResponse(p))
	}
	return resp
}

func dbAdjustmentToResponse(a database.PaymentAdjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:         a.ID,
		OrderID:    a.OrderID,
		RevisionID: a.RevisionID,
		PaymentID:  a.PaymentID,
		Direction:  string(a.Direction),
		Amount:     numericToString(a.Amount),
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
	}
}
