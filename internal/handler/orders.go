package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/middleware"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
	ListOrderLineModifiersByLine(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineModifier, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// Broadcaster pushes events to an outlet's connected terminals.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToOutlet(outletID uuid.UUID, event ws.Event)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	hub   Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Lines             []service.CreateOrderLineRequest `json:"lines"`
	DiscountType      string                           `json:"discount_type"`
	DiscountValue     string                           `json:"discount_value"`
	TaxRate           string                           `json:"tax_rate"`
	ServiceFeeRate    string                           `json:"service_fee_rate"`
	DownPaymentAmount string                           `json:"down_payment_amount"`
	Notes             string                           `json:"notes"`
}

type orderResponse struct {
	ID                  uuid.UUID      `json:"id"`
	OutletID            uuid.UUID      `json:"outlet_id"`
	OrderNumber         string         `json:"order_number"`
	Status              string         `json:"status"`
	Version             int32          `json:"version"`
	CurrentBatch        int32          `json:"current_batch"`
	DiscountType        *string        `json:"discount_type"`
	DiscountValue       *string        `json:"discount_value"`
	DiscountAmount      string         `json:"discount_amount"`
	TotalBeforeDiscount string         `json:"total_before_discount"`
	TotalAfterDiscount  string         `json:"total_after_discount"`
	TaxAmount           string         `json:"tax_amount"`
	ServiceFeeAmount    string         `json:"service_fee_amount"`
	GrandTotal          string         `json:"grand_total"`
	Notes               *string        `json:"notes"`
	CreatedBy           uuid.UUID      `json:"created_by"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Lines               []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	ID            uuid.UUID          `json:"id"`
	CatalogItemID uuid.UUID          `json:"catalog_item_id"`
	Name          string             `json:"name"`
	Quantity      int32              `json:"quantity"`
	BasePrice     string             `json:"base_price"`
	Subtotal      string             `json:"subtotal"`
	Notes         *string            `json:"notes"`
	BatchNumber   int32              `json:"batch_number"`
	KitchenStatus string             `json:"kitchen_status"`
	PaymentID     *string            `json:"payment_id"`
	Modifiers     []modifierResponse `json:"modifiers,omitempty"`
}

type modifierResponse struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// orderDetailResponse extends orderResponse with payments for the GET detail endpoint.
type orderDetailResponse struct {
	orderResponse
	Payments []paymentResponse `json:"payments"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
}

// --- Handlers ---

// Create handles POST /outlets/{oid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lines are required"})
		return
	}

	svcReq := service.CreateOrderRequest{
		OutletID:     outletID,
		Lines:        req.Lines,
		DiscountType: req.DiscountType,
		Notes:        req.Notes,
		CreatedBy:    claims.UserID,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"discount_value", req.DiscountValue, &svcReq.DiscountValue},
		{"tax_rate", req.TaxRate, &svcReq.TaxRate},
		{"service_fee_rate", req.ServiceFeeRate, &svcReq.ServiceFeeRate},
		{"down_payment_amount", req.DownPaymentAmount, &svcReq.DownPaymentAmount},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + f.name})
			return
		}
		*f.dst = d
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		if isOrderValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrCatalogItemNotFound) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(result.Order)
	for _, l := range result.Lines {
		resp.Lines = append(resp.Lines, dbLineToResponse(l, nil))
	}

	if event, err := ws.NewEvent(ws.EventOrderCreated, resp); err == nil {
		h.hub.BroadcastToOutlet(outletID, event)
	}

	writeJSON(w, http.StatusCreated, orderDetailResponse{
		orderResponse: resp,
		Payments:      dbPaymentsToResponse(result.Payments),
	})
}

// List handles GET /outlets/{oid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		OutletID: outletID,
		Limit:    int32(limit),
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := orderListResponse{Orders: []orderResponse{}, Limit: limit}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, dbOrderToResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /outlets/{oid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := orderDetailResponse{orderResponse: dbOrderToResponse(order)}

	lines, err := h.store.ListOrderLinesByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order lines: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, l := range lines {
		mods, err := h.store.ListOrderLineModifiersByLine(r.Context(), l.ID)
		if err != nil {
			log.Printf("ERROR: list line modifiers: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp.Lines = append(resp.Lines, dbLineToResponse(l, mods))
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	resp.Payments = dbPaymentsToResponse(payments)

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyOrder) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidDiscount) ||
		errors.Is(err, service.ErrInvalidDownPayment) ||
		errors.Is(err, service.ErrInvalidCatalogItemID)
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:                  o.ID,
		OutletID:            o.OutletID,
		OrderNumber:         o.OrderNumber,
		Status:              string(o.Status),
		Version:             o.Version,
		CurrentBatch:        o.CurrentBatch,
		DiscountType:        textPtr(o.DiscountType),
		DiscountValue:       numericPtr(o.DiscountValue),
		DiscountAmount:      numericToString(o.DiscountAmount),
		TotalBeforeDiscount: numericToString(o.TotalBeforeDiscount),
		TotalAfterDiscount:  numericToString(o.TotalAfterDiscount),
		TaxAmount:           numericToString(o.TaxAmount),
		ServiceFeeAmount:    numericToString(o.ServiceFeeAmount),
		GrandTotal:          numericToString(o.GrandTotal),
		Notes:               textPtr(o.Notes),
		CreatedBy:           o.CreatedBy,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func dbLineToResponse(l database.OrderLine, mods []database.OrderLineModifier) lineResponse {
	resp := lineResponse{
		ID:            l.ID,
		CatalogItemID: l.CatalogItemID,
		Name:          l.Name,
		Quantity:      l.Quantity,
		BasePrice:     numericToString(l.BasePrice),
		Subtotal:      numericToString(l.Subtotal),
		Notes:         textPtr(l.Notes),
		BatchNumber:   l.BatchNumber,
		KitchenStatus: string(l.KitchenStatus),
	}
	if l.PaymentID.Valid {
		s := uuid.UUID(l.PaymentID.Bytes).String()
		resp.PaymentID = &s
	}
	for _, m := range mods {
		resp.Modifiers = append(resp.Modifiers, modifierResponse{
			Kind:  string(m.Kind),
			Name:  m.Name,
			Price: numericToString(m.Price),
		})
	}
	return resp
}
