package service

import (
	"github.com/google/uuid"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// The allocator decides how a revision's grand-total delta is realized against
// the order's payments. The rule it must never break: once money has actually
// been collected, a negative delta cannot vanish. It surfaces as a reduction
// of an uncollected pending amount or as an explicit refund. A positive delta
// before any settlement is a paper adjustment to the pending charge; after
// settlement it must produce a new collectible amount.

// pendingAdjustment is a planned in-place change to a still-pending payment.
type pendingAdjustment struct {
	PaymentID   uuid.UUID
	AmountDelta decimal.Decimal // signed
	NewAmount   decimal.Decimal
	Direction   enum.PaymentDirection
}

// newPendingPayment is a planned brand-new collectible.
type newPendingPayment struct {
	Amount           decimal.Decimal
	Type             enum.PaymentType
	RelatedPaymentID uuid.UUID // settled down payment, when one exists
	HasRelated       bool
}

// refundPayment is a planned instantly-settled cash-out.
type refundPayment struct {
	Amount           decimal.Decimal
	RelatedPaymentID uuid.UUID // the settled payment being partially undone
}

type allocationPlan struct {
	PendingAdjustments []pendingAdjustment
	NewPending         *newPendingPayment
	Refund             *refundPayment
}

// AllocationEffects is the committed outcome reported to callers and
// broadcast with the change notification.
type AllocationEffects struct {
	PendingPaymentAdjusted []PendingPaymentEffect `json:"pending_payment_adjusted,omitempty"`
	NewPendingPaymentID    *uuid.UUID             `json:"new_pending_payment_id,omitempty"`
	RefundPaymentID        *uuid.UUID             `json:"refund_payment_id,omitempty"`
}

type PendingPaymentEffect struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	AmountDelta string    `json:"amount_delta"`
}

// settlementExists reports whether the order's original collection has been
// closed out: a settled FULL or FINAL_PAYMENT. A settled down payment alone
// does not close the collection; it only decides the type and linkage of any
// new pending payment.
func settlementExists(payments []database.Payment) bool {
	for _, p := range payments {
		if p.Status != enum.PaymentStatusSettlement {
			continue
		}
		if p.Direction.Valid && enum.PaymentDirection(p.Direction.String) == enum.DirectionRefund {
			continue
		}
		if p.PaymentType == enum.PaymentTypeDownPayment {
			continue
		}
		return true
	}
	return false
}

func settledDownPayment(payments []database.Payment) (database.Payment, bool) {
	for _, p := range payments {
		if p.Status == enum.PaymentStatusSettlement && p.PaymentType == enum.PaymentTypeDownPayment {
			return p, true
		}
	}
	return database.Payment{}, false
}

// latestSettledPayment picks the payment a refund is linked back to.
func latestSettledPayment(payments []database.Payment) (database.Payment, bool) {
	var found database.Payment
	var ok bool
	for _, p := range payments {
		if p.Status != enum.PaymentStatusSettlement {
			continue
		}
		if p.Direction.Valid && enum.PaymentDirection(p.Direction.String) == enum.DirectionRefund {
			continue
		}
		if !ok || p.CreatedAt.After(found.CreatedAt) {
			found, ok = p, true
		}
	}
	return found, ok
}

func firstPendingPayment(payments []database.Payment) (database.Payment, bool) {
	for _, p := range payments {
		if p.Status == enum.PaymentStatusPending {
			return p, true
		}
	}
	return database.Payment{}, false
}

// planAllocation evaluates the decision table. Pure: it reads the payment set
// and the signed delta, and returns the writes to perform.
func planAllocation(grandDelta decimal.Decimal, payments []database.Payment) allocationPlan {
	var plan allocationPlan
	if grandDelta.IsZero() {
		return plan
	}

	settled := settlementExists(payments)
	pending, hasPending := firstPendingPayment(payments)

	if !settled {
		if hasPending {
			// Paper adjustment: move the pending amount, clamped at zero.
			// Any unabsorbed negative remainder is money never collected,
			// so it disappears with the pending amount.
			oldAmount := numericToDecimal(pending.Amount)
			newAmount := oldAmount.Add(grandDelta)
			if newAmount.IsNegative() {
				newAmount = decimal.Zero
			}
			applied := newAmount.Sub(oldAmount)
			if applied.IsZero() {
				return plan
			}
			plan.PendingAdjustments = append(plan.PendingAdjustments, pendingAdjustment{
				PaymentID:   pending.ID,
				AmountDelta: applied,
				NewAmount:   newAmount,
				Direction:   directionForDelta(applied),
			})
			return plan
		}
		if grandDelta.IsPositive() {
			plan.NewPending = buildNewPending(grandDelta, payments)
			return plan
		}
		// Negative, nothing pending, nothing collected: absorbed silently.
		return plan
	}

	// Settlement exists.
	if grandDelta.IsPositive() {
		if hasPending {
			oldAmount := numericToDecimal(pending.Amount)
			plan.PendingAdjustments = append(plan.PendingAdjustments, pendingAdjustment{
				PaymentID:   pending.ID,
				AmountDelta: grandDelta,
				NewAmount:   oldAmount.Add(grandDelta),
				Direction:   enum.DirectionCharge,
			})
			return plan
		}
		plan.NewPending = buildNewPending(grandDelta, payments)
		return plan
	}

	// Negative delta with money in the till: offset the pending charge first,
	// then refund whatever the offset could not absorb.
	remaining := grandDelta.Neg()
	if hasPending {
		oldAmount := numericToDecimal(pending.Amount)
		if oldAmount.IsPositive() {
			offset := decimal.Min(oldAmount, remaining)
			plan.PendingAdjustments = append(plan.PendingAdjustments, pendingAdjustment{
				PaymentID:   pending.ID,
				AmountDelta: offset.Neg(),
				NewAmount:   oldAmount.Sub(offset),
				Direction:   enum.DirectionRefund,
			})
			remaining = remaining.Sub(offset)
		}
	}
	if remaining.IsPositive() {
		original, _ := latestSettledPayment(payments)
		plan.Refund = &refundPayment{
			Amount:           remaining,
			RelatedPaymentID: original.ID,
		}
	}
	return plan
}

func buildNewPending(amount decimal.Decimal, payments []database.Payment) *newPendingPayment {
	np := &newPendingPayment{
		Amount: amount,
		Type:   enum.PaymentTypeFull,
	}
	if dp, ok := settledDownPayment(payments); ok {
		np.Type = enum.PaymentTypeFinalPayment
		np.RelatedPaymentID = dp.ID
		np.HasRelated = true
	}
	return np
}

func directionForDelta(delta decimal.Decimal) enum.PaymentDirection {
	if delta.IsNegative() {
		return enum.DirectionRefund
	}
	return enum.DirectionCharge
}
