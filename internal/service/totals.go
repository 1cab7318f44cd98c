package service

import (
	"github.com/sajian-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Totals are the five order-level monetary fields. They are always a pure
// function of the line list, the order's discount fields, and the tax/service
// rates the order was opened under.
type Totals struct {
	BeforeDiscount decimal.Decimal
	AfterDiscount  decimal.Decimal
	Tax            decimal.Decimal
	ServiceFee     decimal.Decimal
	Grand          decimal.Decimal
}

type Rates struct {
	Tax     decimal.Decimal
	Service decimal.Decimal
}

type DiscountConfig struct {
	Type  enum.DiscountType
	Value decimal.Decimal
}

// impliedRates derives the tax and service-fee rates from an order's prior
// totals. An in-flight order keeps the terms it was opened under even if the
// business-wide configuration has changed since, so revisions never consult
// the current rate settings. A zero prior base yields zero rates.
func impliedRates(priorBefore, priorTax, priorService decimal.Decimal) Rates {
	if priorBefore.IsZero() {
		return Rates{Tax: decimal.Zero, Service: decimal.Zero}
	}
	return Rates{
		Tax:     priorTax.Div(priorBefore),
		Service: priorService.Div(priorBefore),
	}
}

// computeTotals recomputes the order totals from a line list. Discount applies
// to the pre-tax base; tax and service fee are charged on the undiscounted
// base, matching how the order was originally totalled.
func computeTotals(lines []Line, disc DiscountConfig, rates Rates) Totals {
	before := decimal.Zero
	for _, l := range lines {
		before = before.Add(l.Subtotal)
	}

	discount := decimal.Zero
	switch disc.Type {
	case enum.DiscountTypePercentage:
		discount = roundMoney(before.Mul(disc.Value).Div(decimal.NewFromInt(100)))
	case enum.DiscountTypeFixed:
		discount = disc.Value
	}

	after := roundMoney(before.Sub(discount))
	if after.IsNegative() {
		after = decimal.Zero
	}

	tax := roundMoney(before.Mul(rates.Tax))
	service := roundMoney(before.Mul(rates.Service))

	return Totals{
		BeforeDiscount: before,
		AfterDiscount:  after,
		Tax:            tax,
		ServiceFee:     service,
		Grand:          after.Add(tax).Add(service),
	}
}
