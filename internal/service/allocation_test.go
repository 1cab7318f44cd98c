package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

func pendingPayment(amount string, typ enum.PaymentType) database.Payment {
	return database.Payment{
		ID:          uuid.New(),
		Status:      enum.PaymentStatusPending,
		Amount:      makeNumeric(amount),
		PaymentType: typ,
		CreatedAt:   time.Now(),
	}
}

func settledPayment(amount string, typ enum.PaymentType, at time.Time) database.Payment {
	return database.Payment{
		ID:          uuid.New(),
		Status:      enum.PaymentStatusSettlement,
		Amount:      makeNumeric(amount),
		PaymentType: typ,
		CreatedAt:   at,
	}
}

func refundOf(p database.Payment, amount string) database.Payment {
	return database.Payment{
		ID:               uuid.New(),
		Status:           enum.PaymentStatusSettlement,
		Amount:           makeNumeric(amount),
		PaymentType:      enum.PaymentTypeFull,
		IsAdjustment:     true,
		Direction:        pgtype.Text{String: string(enum.DirectionRefund), Valid: true},
		RelatedPaymentID: pgtype.UUID{Bytes: p.ID, Valid: true},
		CreatedAt:        p.CreatedAt.Add(time.Minute),
	}
}

func TestPlanAllocation_ZeroDelta(t *testing.T) {
	plan := planAllocation(decimal.Zero, []database.Payment{pendingPayment("40000", enum.PaymentTypeFull)})

	if len(plan.PendingAdjustments) != 0 || plan.NewPending != nil || plan.Refund != nil {
		t.Errorf("zero delta must plan nothing, got %+v", plan)
	}
}

func TestPlanAllocation_PreSettlementIncrease(t *testing.T) {
	p := pendingPayment("40000", enum.PaymentTypeFull)
	plan := planAllocation(dec("15000"), []database.Payment{p})

	if len(plan.PendingAdjustments) != 1 {
		t.Fatalf("want one pending adjustment, got %+v", plan)
	}
	adj := plan.PendingAdjustments[0]
	if adj.PaymentID != p.ID {
		t.Errorf("adjusted payment = %s, want %s", adj.PaymentID, p.ID)
	}
	if !adj.NewAmount.Equal(dec("55000")) {
		t.Errorf("new amount = %s, want 55000", adj.NewAmount)
	}
	if adj.Direction != enum.DirectionCharge {
		t.Errorf("direction = %s, want CHARGE", adj.Direction)
	}
	if plan.NewPending != nil || plan.Refund != nil {
		t.Errorf("pre-settlement increase must not open a new payment or refund, got %+v", plan)
	}
}

func TestPlanAllocation_PreSettlementDecrease(t *testing.T) {
	p := pendingPayment("40000", enum.PaymentTypeFull)
	plan := planAllocation(dec("-10000"), []database.Payment{p})

	if len(plan.PendingAdjustments) != 1 {
		t.Fatalf("want one pending adjustment, got %+v", plan)
	}
	adj := plan.PendingAdjustments[0]
	if !adj.NewAmount.Equal(dec("30000")) {
		t.Errorf("new amount = %s, want 30000", adj.NewAmount)
	}
	if adj.Direction != enum.DirectionRefund {
		t.Errorf("direction = %s, want REFUND", adj.Direction)
	}
	if plan.Refund != nil {
		t.Error("nothing was collected, so no refund")
	}
}

func TestPlanAllocation_PreSettlementClampAtZero(t *testing.T) {
	p := pendingPayment("40000", enum.PaymentTypeFull)
	plan := planAllocation(dec("-55000"), []database.Payment{p})

	if len(plan.PendingAdjustments) != 1 {
		t.Fatalf("want one pending adjustment, got %+v", plan)
	}
	adj := plan.PendingAdjustments[0]
	if !adj.NewAmount.IsZero() {
		t.Errorf("new amount = %s, want 0", adj.NewAmount)
	}
	if !adj.AmountDelta.Equal(dec("-40000")) {
		t.Errorf("applied delta = %s, want -40000 (clamped)", adj.AmountDelta)
	}
	if plan.Refund != nil {
		t.Error("the unabsorbed remainder was never collected; no refund")
	}
}

func TestPlanAllocation_PreSettlementNoPendingNegativeAbsorbed(t *testing.T) {
	plan := planAllocation(dec("-5000"), nil)

	if len(plan.PendingAdjustments) != 0 || plan.NewPending != nil || plan.Refund != nil {
		t.Errorf("negative delta with nothing pending and nothing collected is absorbed, got %+v", plan)
	}
}

func TestPlanAllocation_PostSettlementIncreaseOpensNewPending(t *testing.T) {
	full := settledPayment("40000", enum.PaymentTypeFull, time.Now())
	plan := planAllocation(dec("15000"), []database.Payment{full})

	if plan.NewPending == nil {
		t.Fatalf("want a new pending payment, got %+v", plan)
	}
	if !plan.NewPending.Amount.Equal(dec("15000")) {
		t.Errorf("amount = %s, want 15000", plan.NewPending.Amount)
	}
	if plan.NewPending.Type != enum.PaymentTypeFull {
		t.Errorf("type = %s, want FULL", plan.NewPending.Type)
	}
	if plan.NewPending.HasRelated {
		t.Error("no down payment exists to link back to")
	}
}

func TestPlanAllocation_SettledDownPaymentLinksFinalPayment(t *testing.T) {
	dp := settledPayment("10000", enum.PaymentTypeDownPayment, time.Now())
	plan := planAllocation(dec("15000"), []database.Payment{dp})

	// A settled down payment alone does not close the collection, so this is
	// the pre-settlement no-pending branch: a new pending payment typed as
	// the final installment.
	if plan.NewPending == nil {
		t.Fatalf("want a new pending payment, got %+v", plan)
	}
	if plan.NewPending.Type != enum.PaymentTypeFinalPayment {
		t.Errorf("type = %s, want FINAL_PAYMENT", plan.NewPending.Type)
	}
	if !plan.NewPending.HasRelated || plan.NewPending.RelatedPaymentID != dp.ID {
		t.Errorf("new pending must link to the settled down payment %s, got %+v", dp.ID, plan.NewPending)
	}
}

func TestPlanAllocation_PostSettlementIncreaseGrowsExistingPending(t *testing.T) {
	dp := settledPayment("10000", enum.PaymentTypeDownPayment, time.Now())
	full := settledPayment("30000", enum.PaymentTypeFinalPayment, time.Now().Add(time.Minute))
	extra := pendingPayment("5000", enum.PaymentTypeFull)
	plan := planAllocation(dec("8000"), []database.Payment{dp, full, extra})

	if len(plan.PendingAdjustments) != 1 {
		t.Fatalf("want the existing pending payment grown, got %+v", plan)
	}
	if !plan.PendingAdjustments[0].NewAmount.Equal(dec("13000")) {
		t.Errorf("new amount = %s, want 13000", plan.PendingAdjustments[0].NewAmount)
	}
	if plan.NewPending != nil {
		t.Error("must not open a second pending payment while one exists")
	}
}

func TestPlanAllocation_PostSettlementDecreaseRefunds(t *testing.T) {
	full := settledPayment("40000", enum.PaymentTypeFull, time.Now())
	plan := planAllocation(dec("-12000"), []database.Payment{full})

	if plan.Refund == nil {
		t.Fatalf("want a refund, got %+v", plan)
	}
	if !plan.Refund.Amount.Equal(dec("12000")) {
		t.Errorf("refund amount = %s, want 12000", plan.Refund.Amount)
	}
	if plan.Refund.RelatedPaymentID != full.ID {
		t.Errorf("refund must link to the settled payment %s", full.ID)
	}
}

func TestPlanAllocation_PostSettlementDecreaseOffsetsPendingFirst(t *testing.T) {
	full := settledPayment("40000", enum.PaymentTypeFull, time.Now())
	extra := pendingPayment("5000", enum.PaymentTypeFull)
	plan := planAllocation(dec("-12000"), []database.Payment{full, extra})

	if len(plan.PendingAdjustments) != 1 {
		t.Fatalf("want the pending charge offset first, got %+v", plan)
	}
	adj := plan.PendingAdjustments[0]
	if !adj.NewAmount.IsZero() || !adj.AmountDelta.Equal(dec("-5000")) {
		t.Errorf("offset = %+v, want pending zeroed by -5000", adj)
	}
	if plan.Refund == nil || !plan.Refund.Amount.Equal(dec("7000")) {
		t.Errorf("refund = %+v, want the unabsorbed 7000", plan.Refund)
	}
}

func TestPlanAllocation_PostSettlementDecreaseFullyOffset(t *testing.T) {
	full := settledPayment("40000", enum.PaymentTypeFull, time.Now())
	extra := pendingPayment("15000", enum.PaymentTypeFull)
	plan := planAllocation(dec("-12000"), []database.Payment{full, extra})

	if plan.Refund != nil {
		t.Errorf("pending charge absorbs the whole decrease, no refund: %+v", plan.Refund)
	}
	if len(plan.PendingAdjustments) != 1 || !plan.PendingAdjustments[0].NewAmount.Equal(dec("3000")) {
		t.Errorf("adjustments = %+v, want pending reduced to 3000", plan.PendingAdjustments)
	}
}

func TestPlanAllocation_RefundLinksLatestSettled(t *testing.T) {
	older := settledPayment("10000", enum.PaymentTypeDownPayment, time.Now())
	newer := settledPayment("30000", enum.PaymentTypeFinalPayment, time.Now().Add(time.Hour))
	plan := planAllocation(dec("-5000"), []database.Payment{older, newer})

	if plan.Refund == nil || plan.Refund.RelatedPaymentID != newer.ID {
		t.Errorf("refund must link the most recent settlement %s, got %+v", newer.ID, plan.Refund)
	}
}

func TestSettlementExists_IgnoresRefundsAndDownPayments(t *testing.T) {
	dp := settledPayment("10000", enum.PaymentTypeDownPayment, time.Now())
	rf := refundOf(dp, "2000")

	if settlementExists([]database.Payment{dp, rf}) {
		t.Error("a down payment and a refund do not close the collection")
	}

	full := settledPayment("30000", enum.PaymentTypeFinalPayment, time.Now())
	if !settlementExists([]database.Payment{dp, rf, full}) {
		t.Error("a settled final payment closes the collection")
	}
}

func TestLatestSettledPayment_SkipsRefunds(t *testing.T) {
	full := settledPayment("40000", enum.PaymentTypeFull, time.Now())
	rf := refundOf(full, "5000")

	got, ok := latestSettledPayment([]database.Payment{full, rf})
	if !ok || got.ID != full.ID {
		t.Errorf("latest settled must skip refund rows, got %+v ok=%v", got, ok)
	}
}
