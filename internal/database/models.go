package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/enum"
)

type User struct {
	ID        uuid.UUID
	OutletID  uuid.UUID
	Name      string
	PinHash   string
	Role      string
	CreatedAt time.Time
}

type Outlet struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type CatalogItem struct {
	ID        uuid.UUID
	OutletID  uuid.UUID
	Name      string
	BasePrice pgtype.Numeric
	Active    bool
	CreatedAt time.Time
}

// CatalogModifier is one selectable addon option or topping of a catalog item.
// Addon options carry a GroupName; at most one option per group is designated
// the default used when a selection omits that group.
type CatalogModifier struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	Kind      enum.ModifierKind
	GroupName pgtype.Text
	Name      string
	Price     pgtype.Numeric
	IsDefault bool
}

type Order struct {
	ID                  uuid.UUID
	OutletID            uuid.UUID
	OrderNumber         string
	Status              enum.OrderStatus
	Version             int32
	CurrentBatch        int32
	DiscountType        pgtype.Text
	DiscountValue       pgtype.Numeric
	DiscountAmount      pgtype.Numeric
	TotalBeforeDiscount pgtype.Numeric
	TotalAfterDiscount  pgtype.Numeric
	TaxAmount           pgtype.Numeric
	ServiceFeeAmount    pgtype.Numeric
	GrandTotal          pgtype.Numeric
	Notes               pgtype.Text
	CreatedBy           uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type OrderLine struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	CatalogItemID uuid.UUID
	Name          string
	Quantity      int32
	BasePrice     pgtype.Numeric
	Subtotal      pgtype.Numeric
	Notes         pgtype.Text
	BatchNumber   int32
	KitchenStatus enum.KitchenStatus
	PaymentID     pgtype.UUID
	CreatedAt     time.Time
}

type OrderLineModifier struct {
	ID     uuid.UUID
	LineID uuid.UUID
	Kind   enum.ModifierKind
	Name   string
	Price  pgtype.Numeric
}

type Payment struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Method           enum.PaymentMethod
	Status           enum.PaymentStatus
	Amount           pgtype.Numeric
	PaymentType      enum.PaymentType
	IsAdjustment     bool
	Direction        pgtype.Text
	RelatedPaymentID pgtype.UUID
	RevisionID       pgtype.UUID
	ReferenceNumber  pgtype.Text
	PaidAt           pgtype.Timestamptz
	ProcessedBy      uuid.UUID
	CreatedAt        time.Time
}

type PaymentAdjustment struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	RevisionID uuid.UUID
	PaymentID  uuid.UUID
	Direction  enum.PaymentDirection
	Amount     pgtype.Numeric
	Status     enum.PaymentStatus
	CreatedAt  time.Time
}

// OrderRevision is one committed ledger entry. Operations holds the submitted
// operation batch annotated with each operation's realized price delta, as JSON.
type OrderRevision struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	VersionFrom    int32
	VersionTo      int32
	ReasonCode     enum.ReasonCode
	ReasonNote     pgtype.Text
	CreatedBy      uuid.UUID
	ApprovedBy     pgtype.UUID
	DeltaAmount    pgtype.Numeric
	Operations     []byte
	IdempotencyKey pgtype.Text
	CreatedAt      time.Time
}
