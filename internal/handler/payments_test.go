package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/sajian-pos/api/internal/handler"
	"github.com/sajian-pos/api/internal/middleware"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
)

// --- Mock PaymentServicer ---

type mockPaymentService struct {
	settleFn  func(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error)
	captureFn func(ctx context.Context, req service.CaptureAdjustmentRequest) (*service.CaptureResult, error)
}

func (m *mockPaymentService) SettlePayment(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error) {
	return m.settleFn(ctx, req)
}

func (m *mockPaymentService) CaptureAdjustment(ctx context.Context, req service.CaptureAdjustmentRequest) (*service.CaptureResult, error) {
	return m.captureFn(ctx, req)
}

// --- Mock PaymentStore ---

type mockPaymentReadStore struct {
	getOrderFn        func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	listPaymentsFn    func(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	listAdjustmentsFn func(ctx context.Context, orderID uuid.UUID) ([]database.PaymentAdjustment, error)
}

func (m *mockPaymentReadStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockPaymentReadStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, orderID)
	}
	return []database.Payment{}, nil
}

func (m *mockPaymentReadStore) ListPaymentAdjustmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.PaymentAdjustment, error) {
	if m.listAdjustmentsFn != nil {
		return m.listAdjustmentsFn(ctx, orderID)
	}
	return []database.PaymentAdjustment{}, nil
}

// --- Test helpers ---

func setupPaymentRouter(svc *mockPaymentService, store *mockPaymentReadStore, hub *mockHub) *chi.Mux {
	h := handler.NewPaymentHandler(svc, store, hub)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/outlets/{oid}", func(r chi.Router) {
		r.Get("/orders/{id}/payments", h.List)
		r.Post("/payments/{pid}/settle", h.Settle)
		r.Post("/adjustments/{aid}/capture", h.Capture)
	})
	return r
}

func settledTestPayment(orderID uuid.UUID, amount string) database.Payment {
	return database.Payment{
		ID:          uuid.New(),
		OrderID:     orderID,
		Method:      enum.PaymentMethodCash,
		Status:      enum.PaymentStatusSettlement,
		Amount:      testNumeric(amount),
		PaymentType: enum.PaymentTypeFull,
		ProcessedBy: uuid.New(),
		CreatedAt:   time.Now(),
	}
}

// --- Tests ---

func TestPaymentList(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	order := testOrder(outletID)

	store := &mockPaymentReadStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return order, nil
		},
		listPaymentsFn: func(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
			return []database.Payment{settledTestPayment(orderID, "58000")}, nil
		},
		listAdjustmentsFn: func(ctx context.Context, orderID uuid.UUID) ([]database.PaymentAdjustment, error) {
			return []database.PaymentAdjustment{{
				ID:         uuid.New(),
				OrderID:    orderID,
				RevisionID: uuid.New(),
				PaymentID:  uuid.New(),
				Direction:  enum.DirectionCharge,
				Amount:     testNumeric("17400"),
				Status:     enum.PaymentStatusPending,
				CreatedAt:  time.Now(),
			}}, nil
		},
	}
	router := setupPaymentRouter(&mockPaymentService{}, store, &mockHub{})
	rr := doAuthRequest(t, router, "GET", "/outlets/"+outletID.String()+"/orders/"+order.ID.String()+"/payments", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	payments, ok := resp["payments"].([]interface{})
	if !ok || len(payments) != 1 {
		t.Fatalf("payments: got %v, want one", resp["payments"])
	}
	p := payments[0].(map[string]interface{})
	if p["amount"] != "58000" || p["status"] != "SETTLEMENT" {
		t.Errorf("payment: got amount=%v status=%v", p["amount"], p["status"])
	}
	adjustments, ok := resp["adjustments"].([]interface{})
	if !ok || len(adjustments) != 1 {
		t.Fatalf("adjustments: got %v, want one", resp["adjustments"])
	}
	a := adjustments[0].(map[string]interface{})
	if a["direction"] != "CHARGE" || a["status"] != "PENDING" {
		t.Errorf("adjustment: got direction=%v status=%v", a["direction"], a["status"])
	}
}

func TestPaymentList_OrderNotFound(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	router := setupPaymentRouter(&mockPaymentService{}, &mockPaymentReadStore{}, &mockHub{})

	rr := doAuthRequest(t, router, "GET", "/outlets/"+outletID.String()+"/orders/"+uuid.New().String()+"/payments", nil, claims)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestPaymentSettle_HappyPath(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	orderID := uuid.New()
	paymentID := uuid.New()

	svc := &mockPaymentService{
		settleFn: func(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error) {
			if req.OutletID != outletID || req.OrderID != orderID || req.PaymentID != paymentID {
				t.Errorf("request ids: got %+v", req)
			}
			payment := settledTestPayment(orderID, "58000")
			payment.ID = paymentID
			return &service.SettlementResult{Payment: payment, OrderCompleted: true}, nil
		},
	}
	hub := &mockHub{}
	router := setupPaymentRouter(svc, &mockPaymentReadStore{}, hub)
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/payments/"+paymentID.String()+"/settle",
		map[string]string{"order_id": orderID.String()}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["order_completed"] != true {
		t.Errorf("order_completed: got %v, want true", resp["order_completed"])
	}
	payment, ok := resp["payment"].(map[string]interface{})
	if !ok || payment["status"] != "SETTLEMENT" {
		t.Errorf("payment: got %v", resp["payment"])
	}
	types := hub.eventTypes()
	if len(types) != 1 || types[0] != ws.EventPaymentUpdated {
		t.Errorf("broadcast events: got %v, want [%s]", types, ws.EventPaymentUpdated)
	}
}

func TestPaymentSettle_ErrorMapping(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"payment not found", service.ErrPaymentNotFound, http.StatusNotFound},
		{"order not found", service.ErrOrderNotFound, http.StatusNotFound},
		{"already settled", service.ErrPaymentNotPending, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockPaymentService{
				settleFn: func(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error) {
					return nil, tc.err
				},
			}
			hub := &mockHub{}
			router := setupPaymentRouter(svc, &mockPaymentReadStore{}, hub)
			rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/payments/"+uuid.New().String()+"/settle",
				map[string]string{"order_id": uuid.New().String()}, claims)
			if rr.Code != tc.want {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tc.want, rr.Body.String())
			}
			if len(hub.eventTypes()) != 0 {
				t.Error("failed settle must not broadcast")
			}
		})
	}
}

func TestPaymentSettle_BadOrderID(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockPaymentService{
		settleFn: func(ctx context.Context, req service.SettlePaymentRequest) (*service.SettlementResult, error) {
			t.Fatal("service must not be called with a malformed order_id")
			return nil, nil
		},
	}
	router := setupPaymentRouter(svc, &mockPaymentReadStore{}, &mockHub{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/payments/"+uuid.New().String()+"/settle",
		map[string]string{"order_id": "not-a-uuid"}, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAdjustmentCapture_Settlement(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	orderID := uuid.New()
	adjustmentID := uuid.New()

	svc := &mockPaymentService{
		captureFn: func(ctx context.Context, req service.CaptureAdjustmentRequest) (*service.CaptureResult, error) {
			if req.AdjustmentID != adjustmentID {
				t.Errorf("adjustment id: got %v, want %v", req.AdjustmentID, adjustmentID)
			}
			if req.Outcome != enum.PaymentStatusSettlement {
				t.Errorf("outcome: got %v, want SETTLEMENT", req.Outcome)
			}
			if req.Method != enum.PaymentMethodQRIS {
				t.Errorf("method: got %v, want QRIS", req.Method)
			}
			if req.ReferenceNumber != "QR-20260314-0042" {
				t.Errorf("reference: got %q", req.ReferenceNumber)
			}
			payment := settledTestPayment(orderID, "17400")
			payment.IsAdjustment = true
			return &service.CaptureResult{
				Adjustment: database.PaymentAdjustment{
					ID: adjustmentID, OrderID: orderID,
					RevisionID: uuid.New(), PaymentID: payment.ID,
					Direction: enum.DirectionCharge,
					Amount:    testNumeric("17400"),
					Status:    enum.PaymentStatusSettlement,
				},
				Payment:        payment,
				OrderCompleted: true,
			}, nil
		},
	}
	hub := &mockHub{}
	router := setupPaymentRouter(svc, &mockPaymentReadStore{}, hub)
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/adjustments/"+adjustmentID.String()+"/capture",
		map[string]string{
			"order_id":         orderID.String(),
			"outcome":          "SETTLEMENT",
			"method":           "QRIS",
			"reference_number": "QR-20260314-0042",
		}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	adj, ok := resp["adjustment"].(map[string]interface{})
	if !ok || adj["status"] != "SETTLEMENT" {
		t.Errorf("adjustment: got %v", resp["adjustment"])
	}
	if resp["order_completed"] != true {
		t.Errorf("order_completed: got %v, want true", resp["order_completed"])
	}
	types := hub.eventTypes()
	if len(types) != 1 || types[0] != ws.EventPaymentUpdated {
		t.Errorf("broadcast events: got %v, want [%s]", types, ws.EventPaymentUpdated)
	}
}

func TestAdjustmentCapture_ErrorMapping(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"adjustment not found", service.ErrAdjustmentNotFound, http.StatusNotFound},
		{"already captured", service.ErrAdjustmentNotPending, http.StatusConflict},
		{"refund direction", service.ErrAdjustmentNotCharge, http.StatusConflict},
		{"bad outcome", service.ErrInvalidCaptureOutcome, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockPaymentService{
				captureFn: func(ctx context.Context, req service.CaptureAdjustmentRequest) (*service.CaptureResult, error) {
					return nil, tc.err
				},
			}
			router := setupPaymentRouter(svc, &mockPaymentReadStore{}, &mockHub{})
			rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/adjustments/"+uuid.New().String()+"/capture",
				map[string]string{"order_id": uuid.New().String(), "outcome": "SETTLEMENT", "method": "CASH"}, claims)
			if rr.Code != tc.want {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}
