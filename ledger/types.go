/*
Package ledger is the shop's transactional ledger engine.

PURPOSE:
  Keeps parts inventory, customer balances, sales operations and manual
  debt/payment transactions as one mutually-derived data set. Everything
  lives in a single Document that the persistent store owns; the Engine
  computes each next Document from the current one and commits it whole.

KEY CONCEPTS IN THIS FILE (types.go):
  - Part:        a stocked item with a low-stock threshold
  - Customer:    a person with a signed running balance
  - Operation:   one sale, possibly multi-item
  - Transaction: a manual payment or debt against one customer
  - Document:    the whole persisted aggregate

SIGN CONVENTION:
  Balance > 0 means the customer owes the shop.
  Balance < 0 means the shop owes the customer (credit).

SEE ALSO:
  - engine.go:   mutating entry points
  - effects.go:  stock/balance effect model
  - validate.go: raw record -> canonical entity
  - migrate.go:  legacy document -> current document
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrentVersion is the schema version written by this build.
// Documents without a version field (or with a lower one) are legacy.
const CurrentVersion = 2

// =============================================================================
// ENUMERATIONS
// =============================================================================

type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusUnpaid  PaymentStatus = "unpaid"
)

type TransactionType string

const (
	TxPayment TransactionType = "payment" // customer paid down what they owe
	TxDebt    TransactionType = "debt"    // customer took on more debt
)

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyDanger  NotificationType = "danger"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Part is a stocked item. Quantity is only changed by the Engine's stock paths.
type Part struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" validate:"required"`
	Code      string          `json:"code,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Threshold int             `json:"threshold" validate:"gte=0"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// LowStock reports whether the part is at or below its alert boundary.
func (p Part) LowStock() bool { return p.Quantity <= p.Threshold }

// Customer carries a running balance. Balance always equals OpeningBalance
// plus the replay of the customer's operations and transactions.
type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Item is one line of an Operation. PartName and Price are snapshots taken
// when the operation was recorded; they survive deletion of the part.
type Item struct {
	PartID   string          `json:"partId,omitempty"`
	PartName string          `json:"partName"`
	Quantity int             `json:"quantity" validate:"gte=1"`
	Price    decimal.Decimal `json:"price"`
}

// Total is quantity x unit price.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Operation is one sale event.
type Operation struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	CustomerID    string          `json:"customerId" validate:"required"`
	CustomerName  string          `json:"customerName"`
	Items         []Item          `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal `json:"discount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PaymentStatus PaymentStatus   `json:"paymentStatus" validate:"oneof=paid partial unpaid"`
	Note          string          `json:"note,omitempty"`
}

// BalanceEffect is what this operation adds to its customer's balance.
// A fully paid operation contributes nothing regardless of the amounts.
func (o Operation) BalanceEffect() decimal.Decimal {
	if o.PaymentStatus == StatusPaid {
		return decimal.Zero
	}
	return o.TotalPrice.Sub(o.PaidAmount)
}

// Transaction is a manual balance adjustment not tied to a sale.
type Transaction struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type" validate:"oneof=payment debt"`
	Note       string          `json:"note,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`

	// OperationID links a credit-consumption debt to the operation it paid
	// for. Deleting that operation deletes the transaction with it.
	OperationID string `json:"operationId,omitempty"`
}

// BalanceEffect is +amount for a debt and -amount for a payment.
func (t Transaction) BalanceEffect() decimal.Decimal {
	if t.Type == TxPayment {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Notification is an alert for the UI. Time is already formatted for display.
type Notification struct {
	ID   string           `json:"id"`
	Text string           `json:"text"`
	Type NotificationType `json:"type"`
	Time string           `json:"time"`
	Read bool             `json:"read"`
}

// StockAdjustment records a stock change that did not come from a sale:
// opening stock, a direct restock, or the opening figure of a migrated part.
type StockAdjustment struct {
	ID        string    `json:"id"`
	PartID    string    `json:"partId"`
	Delta     int       `json:"delta"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DayClosure is the end-of-day reconciliation of one session.
type DayClosure struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	Expected   decimal.Decimal `json:"expected"`
	Counted    decimal.Decimal `json:"counted"`
	Difference decimal.Decimal `json:"difference"`
	Note       string          `json:"note,omitempty"`
	ClosedAt   time.Time       `json:"closedAt"`
}

// License is the activation record of this installation. It never leaves
// the machine through an export.
type License struct {
	Key         string    `json:"key"`
	Owner       string    `json:"owner,omitempty"`
	ActivatedAt time.Time `json:"activatedAt"`
}

type Metadata struct {
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// =============================================================================
// DOCUMENT - The whole persisted unit
// =============================================================================

// Document is the single aggregate the store serializes. Collections are
// insertion ordered; ids are unique within their collection.
type Document struct {
	Version           int               `json:"version"`
	Metadata          Metadata          `json:"metadata"`
	Customers         []Customer        `json:"customers"`
	Parts             []Part            `json:"parts"`
	Operations        []Operation       `json:"operations"`
	Transactions      []Transaction     `json:"transactions"`
	Notifications     []Notification    `json:"notifications"`
	StockAdjustments  []StockAdjustment `json:"stockAdjustments"`
	DayClosures       []DayClosure      `json:"dayClosures"`
	ActiveSessionDate string            `json:"activeSessionDate,omitempty"`
	Settings          Settings          `json:"settings"`
	License           *License          `json:"license,omitempty"`
}
