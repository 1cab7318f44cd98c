// Package enum holds the closed status and kind vocabularies shared by the
// database layer, the revision engine, and the payment allocator. They are
// typed strings rather than bare consts so switches over them can be checked
// exhaustively where the allocator's decision table depends on them.
package enum

// ── Order lifecycle (CHECK constrained in DB) ──

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ── Kitchen lifecycle of a single order line ──

type KitchenStatus string

const (
	KitchenStatusPending KitchenStatus = "PENDING"
	KitchenStatusPrinted KitchenStatus = "PRINTED"
	KitchenStatusCooking KitchenStatus = "COOKING"
	KitchenStatusReady   KitchenStatus = "READY"
	KitchenStatusServed  KitchenStatus = "SERVED"
)

func (s KitchenStatus) Valid() bool {
	switch s {
	case KitchenStatusPending, KitchenStatusPrinted, KitchenStatusCooking,
		KitchenStatusReady, KitchenStatusServed:
		return true
	}
	return false
}

// Committed reports whether the kitchen has started working on the line.
// Committed lines may not be removed or requantified, only substituted.
func (s KitchenStatus) Committed() bool {
	switch s {
	case KitchenStatusCooking, KitchenStatusReady, KitchenStatusServed:
		return true
	}
	return false
}

// ── Payments ──

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusSettlement PaymentStatus = "SETTLEMENT"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSettlement, PaymentStatusFailed:
		return true
	}
	return false
}

type PaymentType string

const (
	PaymentTypeFull         PaymentType = "FULL"
	PaymentTypeDownPayment  PaymentType = "DOWN_PAYMENT"
	PaymentTypeFinalPayment PaymentType = "FINAL_PAYMENT"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeFull, PaymentTypeDownPayment, PaymentTypeFinalPayment:
		return true
	}
	return false
}

type PaymentDirection string

const (
	DirectionCharge PaymentDirection = "CHARGE"
	DirectionRefund PaymentDirection = "REFUND"
)

func (d PaymentDirection) Valid() bool {
	switch d {
	case DirectionCharge, DirectionRefund:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodQRIS     PaymentMethod = "QRIS"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCard     PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodQRIS, PaymentMethodTransfer, PaymentMethodCard:
		return true
	}
	return false
}

// ── Revision operations ──

type OperationKind string

const (
	OpAdd        OperationKind = "ADD"
	OpUpdateQty  OperationKind = "UPDATE_QTY"
	OpRemove     OperationKind = "REMOVE"
	OpSubstitute OperationKind = "SUBSTITUTE"
)

func (k OperationKind) Valid() bool {
	switch k {
	case OpAdd, OpUpdateQty, OpRemove, OpSubstitute:
		return true
	}
	return false
}

type ReasonCode string

const (
	ReasonCustomerRequest ReasonCode = "CUSTOMER_REQUEST"
	ReasonOutOfStock      ReasonCode = "OUT_OF_STOCK"
	ReasonCashierError    ReasonCode = "CASHIER_ERROR"
	ReasonKitchenIssue    ReasonCode = "KITCHEN_ISSUE"
)

func (c ReasonCode) Valid() bool {
	switch c {
	case ReasonCustomerRequest, ReasonOutOfStock, ReasonCashierError, ReasonKitchenIssue:
		return true
	}
	return false
}

// ── Discounts (order-level, applied before tax/service) ──

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED_AMOUNT"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// ── Modifier kinds on a line's unit components ──

type ModifierKind string

const (
	ModifierAddon   ModifierKind = "ADDON"
	ModifierTopping ModifierKind = "TOPPING"
)

// ── User roles (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)
