//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/sajian-pos/api/internal/config"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/router"
	"github.com/sajian-pos/api/internal/ws"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full order lifecycle against a real
// PostgreSQL database: create, revise before settlement, replay the same
// revision, settle, revise after settlement, and capture the follow-up charge.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: the hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Seed outlet, cashier and catalog (no bootstrap endpoints) ---
	outletID := seedOutlet(t, ctx, pool)
	cashierID := seedCashier(t, ctx, pool, outletID)
	itemID := seedCatalogItem(t, ctx, pool, outletID, "Nasi Goreng", "25000")
	toppingID := seedTopping(t, ctx, pool, itemID, "Extra Sambal", "5000")

	// --- 2. Login with outlet + name + PIN ---
	token := login(t, server, outletID, "budi", "123456")

	// --- 3. Create an order: 2x (25000 + 5000 topping) at 10% tax ---
	// before 60000, tax 6000, grand 66000, one pending FULL payment
	orderResp := createTestOrder(t, server, outletID, itemID, toppingID, token)
	orderID := uuid.MustParse(orderResp["id"].(string))
	assertAmount(t, orderResp["grand_total"], "66000")

	lines := orderResp["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("order lines: got %d, want 1", len(lines))
	}
	lineID := uuid.MustParse(lines[0].(map[string]interface{})["id"].(string))

	payments := orderResp["payments"].([]interface{})
	if len(payments) != 1 {
		t.Fatalf("order payments: got %d, want 1", len(payments))
	}
	pendingPaymentID := uuid.MustParse(payments[0].(map[string]interface{})["id"].(string))

	// --- 4. Revise before settlement: qty 2 -> 3 ---
	// before 90000, implied 10% tax preserved, grand 99000, delta +33000.
	// The pending payment is resized in place since nothing has been
	// collected yet.
	revBody := map[string]interface{}{
		"base_version": 1,
		"reason_code":  "CUSTOMER_REQUEST",
		"operations": []map[string]interface{}{
			{"kind": "UPDATE_QTY", "line_id": lineID.String(), "from_qty": 2, "to_qty": 3},
		},
	}
	revResp := submitRevision(t, server, outletID, orderID, revBody, "rev-key-1", token, http.StatusCreated)
	rev := revResp["revision"].(map[string]interface{})
	assertAmount(t, rev["delta_amount"], "33000")
	order := revResp["order"].(map[string]interface{})
	assertAmount(t, order["grand_total"], "99000")
	if order["version"].(float64) != 2 {
		t.Fatalf("order version after revision: got %v, want 2", order["version"])
	}
	if revResp["replayed"] != false {
		t.Fatalf("first submit replayed: got %v, want false", revResp["replayed"])
	}

	// --- 5. Replay the same idempotency key ---
	replayResp := submitRevision(t, server, outletID, orderID, revBody, "rev-key-1", token, http.StatusOK)
	if replayResp["replayed"] != true {
		t.Fatalf("replay: got %v, want true", replayResp["replayed"])
	}
	replayOrder := replayResp["order"].(map[string]interface{})
	if replayOrder["version"].(float64) != 2 {
		t.Fatalf("order version after replay: got %v, want 2 (must not re-apply)", replayOrder["version"])
	}

	// --- 6. Settle the pending payment, order completes ---
	settleResp := settlePayment(t, server, outletID, orderID, pendingPaymentID, token)
	assertAmount(t, settleResp["payment"].(map[string]interface{})["amount"], "99000")
	if settleResp["order_completed"] != true {
		t.Fatalf("order_completed after settle: got %v, want true", settleResp["order_completed"])
	}

	// --- 7. Revise after settlement: add 1x plain item ---
	// before 115000, tax 11500, grand 126500, delta +27500 collected through
	// a fresh pending payment plus a pending charge adjustment.
	addBody := map[string]interface{}{
		"base_version": 2,
		"reason_code":  "CUSTOMER_REQUEST",
		"operations": []map[string]interface{}{
			{"kind": "ADD", "catalog_item_id": itemID.String(), "quantity": 1},
		},
	}
	addResp := submitRevision(t, server, outletID, orderID, addBody, "rev-key-2", token, http.StatusCreated)
	effects := addResp["payment_effects"].(map[string]interface{})
	if _, ok := effects["new_pending_payment_id"]; !ok {
		t.Fatalf("payment_effects: got %v, want a new pending payment", effects)
	}

	// --- 8. The new charge adjustment is pending; capture it as QRIS ---
	adjustments := listAdjustments(t, server, outletID, orderID, token)
	var pendingAdjID uuid.UUID
	for _, raw := range adjustments {
		a := raw.(map[string]interface{})
		if a["status"].(string) == "PENDING" && a["direction"].(string) == "CHARGE" {
			pendingAdjID = uuid.MustParse(a["id"].(string))
		}
	}
	if pendingAdjID == uuid.Nil {
		t.Fatalf("no pending charge adjustment after post-settlement add: %v", adjustments)
	}

	captureResp := captureAdjustment(t, server, outletID, orderID, pendingAdjID, token)
	assertAmount(t, captureResp["payment"].(map[string]interface{})["amount"], "27500")
	if captureResp["order_completed"] != true {
		t.Fatalf("order_completed after capture: got %v, want true", captureResp["order_completed"])
	}

	// --- 9. Verify final order state ---
	finalOrder := getOrder(t, server, outletID, orderID, token)
	if finalOrder["status"].(string) != "COMPLETED" {
		t.Fatalf("final order status: got %s, want COMPLETED", finalOrder["status"])
	}
	assertAmount(t, finalOrder["grand_total"], "126500")

	// --- 10. The ledger holds both revisions in order ---
	revisions := listRevisions(t, server, outletID, orderID, token)
	if len(revisions) != 2 {
		t.Fatalf("revision ledger: got %d entries, want 2", len(revisions))
	}

	t.Logf("Integration test passed: container=%s, outlet=%s, cashier=%s, order=%s",
		pgContainer.GetContainerID(), outletID, cashierID, orderID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory (api/internal/handler/).
	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func seedOutlet(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO outlets (name) VALUES ($1) RETURNING id`,
		"Warung Sajian Pusat",
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed outlet: %v", err)
	}
	return id
}

func seedCashier(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID) uuid.UUID {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (outlet_id, name, pin_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		outletID, "budi", string(hash), "CASHIER",
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed cashier: %v", err)
	}
	return id
}

func seedCatalogItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID, name, basePrice string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO catalog_items (outlet_id, name, base_price)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		outletID, name, basePrice,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed catalog item: %v", err)
	}
	return id
}

func seedTopping(t *testing.T, ctx context.Context, pool *pgxpool.Pool, itemID uuid.UUID, name, price string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO catalog_modifiers (item_id, kind, name, price)
		 VALUES ($1, 'TOPPING', $2, $3)
		 RETURNING id`,
		itemID, name, price,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed topping: %v", err)
	}
	return id
}

// --- API call helpers ---

func login(t *testing.T, server *httptest.Server, outletID uuid.UUID, name, pin string) string {
	t.Helper()
	body := map[string]interface{}{
		"outlet_id": outletID.String(),
		"name":      name,
		"pin":       pin,
	}
	resp := httpPostJSON(t, server, "/auth/login", body, "", http.StatusOK)
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func createTestOrder(t *testing.T, server *httptest.Server, outletID, itemID, toppingID uuid.UUID, token string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{
		"tax_rate": "0.10",
		"lines": []map[string]interface{}{
			{
				"catalog_item_id": itemID.String(),
				"quantity":        2,
				"topping_ids":     []string{toppingID.String()},
			},
		},
	}
	return httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/orders", outletID), body, token, http.StatusCreated)
}

func submitRevision(t *testing.T, server *httptest.Server, outletID, orderID uuid.UUID, body map[string]interface{}, idempotencyKey, token string, wantStatus int) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal revision: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+fmt.Sprintf("/outlets/%s/orders/%s/revisions", outletID, orderID), bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("submit revision: status %d, want %d, body: %v", resp.StatusCode, wantStatus, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode revision response: %v", err)
	}
	return result
}

func settlePayment(t *testing.T, server *httptest.Server, outletID, orderID, paymentID uuid.UUID, token string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"order_id": orderID.String()}
	return httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/payments/%s/settle", outletID, paymentID), body, token, http.StatusOK)
}

func captureAdjustment(t *testing.T, server *httptest.Server, outletID, orderID, adjustmentID uuid.UUID, token string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{
		"order_id":         orderID.String(),
		"outcome":          "SETTLEMENT",
		"method":           "QRIS",
		"reference_number": "QRIS-REF-12345",
	}
	return httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/adjustments/%s/capture", outletID, adjustmentID), body, token, http.StatusOK)
}

func getOrder(t *testing.T, server *httptest.Server, outletID, orderID uuid.UUID, token string) map[string]interface{} {
	t.Helper()
	return httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/orders/%s", outletID, orderID), token)
}

func listAdjustments(t *testing.T, server *httptest.Server, outletID, orderID uuid.UUID, token string) []interface{} {
	t.Helper()
	resp := httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/orders/%s/payments", outletID, orderID), token)
	adjustments, ok := resp["adjustments"].([]interface{})
	if !ok {
		t.Fatalf("adjustments missing from payment list: %v", resp)
	}
	return adjustments
}

func listRevisions(t *testing.T, server *httptest.Server, outletID, orderID uuid.UUID, token string) []interface{} {
	t.Helper()
	resp := httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/orders/%s/revisions", outletID, orderID), token)
	revisions, ok := resp["revisions"].([]interface{})
	if !ok {
		t.Fatalf("revisions missing from ledger response: %v", resp)
	}
	return revisions
}

// --- HTTP helpers ---

// assertAmount compares money fields numerically so "66000" and "66000.00"
// both pass.
func assertAmount(t *testing.T, got interface{}, want string) {
	t.Helper()
	s, ok := got.(string)
	if !ok {
		t.Fatalf("amount: got %v (%T), want string %s", got, got, want)
	}
	gotDec, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("amount %q does not parse: %v", s, err)
	}
	if !gotDec.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("amount: got %s, want %s", s, want)
	}
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string, wantStatus int) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, want %d, body: %v", path, resp.StatusCode, wantStatus, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
