/*
validate.go - Raw record -> canonical entity

PURPOSE:
  One validator per entity kind. Each takes a loosely typed Record and either
  fails with a *ValidationError or returns a canonical entity with:
    - a generated id if the id is absent or blank
    - numeric fields coerced and clamped to their valid range
    - timestamps defaulted to "now"
    - derived fields computed (Operation.TotalPrice from its items)

  Validators are pure. Callers decide whether to commit the result.

STRUCT TAGS:
  Presence and enum rules live on the entity structs (types.go) and are
  checked with go-playground/validator after coercion. Rules the tag
  language cannot express on decimals (amount > 0) are checked by hand.
*/
package ledger

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultThreshold is used when a part arrives without a low-stock boundary.
const DefaultThreshold = 5

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the struct tags and converts the first failure into a
// *ValidationError naming the json path of the field.
func checkStruct(entity string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := fe.Field()
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		field = rest
	}
	return invalid(entity, field, fe.Tag())
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// timeOr reads a timestamp in now's location, defaulting to now.
func timeOr(r Record, key string, now time.Time) time.Time {
	if t, ok := r.TimeIn(key, now.Location()); ok {
		return t
	}
	return now
}

// =============================================================================
// CUSTOMER
// =============================================================================

// ValidateCustomer requires a non-blank name. A supplied balance is kept
// (it becomes the opening balance when the customer is added).
func ValidateCustomer(r Record, now time.Time) (Customer, error) {
	c := Customer{
		ID:      ensureID("cust", r.Str("id")),
		Name:    r.Str("name"),
		Phone:   r.Str("phone"),
		Address: r.Str("address"),
	}
	if bal, ok := r.Decimal("balance"); ok {
		c.Balance = bal
	}
	if opening, ok := r.Decimal("openingBalance"); ok {
		c.OpeningBalance = opening
	}
	c.CreatedAt = timeOr(r, "createdAt", now)
	c.UpdatedAt = timeOr(r, "updatedAt", c.CreatedAt)
	if err := checkStruct("customer", c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// =============================================================================
// PART
// =============================================================================

// ValidatePart requires a non-blank name; quantity, price and threshold are
// clamped to >= 0.
func ValidatePart(r Record, now time.Time) (Part, error) {
	p := Part{
		ID:        ensureID("part", r.Str("id")),
		Name:      r.Str("name"),
		Code:      r.Str("code"),
		Threshold: DefaultThreshold,
	}
	if q, ok := r.Int("quantity"); ok && q > 0 {
		p.Quantity = q
	}
	if price, ok := r.Decimal("price"); ok {
		p.Price = clampZero(price)
	}
	if th, ok := r.Int("threshold"); ok {
		p.Threshold = max(th, 0)
	}
	p.CreatedAt = timeOr(r, "createdAt", now)
	p.UpdatedAt = timeOr(r, "updatedAt", p.CreatedAt)
	if err := checkStruct("part", p); err != nil {
		return Part{}, err
	}
	return p, nil
}

// =============================================================================
// OPERATION
// =============================================================================

// ValidateOperation requires a customer id and at least one item with
// quantity >= 1. TotalPrice is recomputed from the items less the discount;
// PaidAmount is clamped to [0, TotalPrice]. When the payment status is
// missing it is derived from the amounts; when the paid amount is missing
// it is derived from the status.
func ValidateOperation(r Record, now time.Time) (Operation, error) {
	op := Operation{
		ID:           ensureID("op", r.Str("id")),
		Timestamp:    timeOr(r, "timestamp", now),
		CustomerID:   r.Str("customerId"),
		CustomerName: r.Str("customerName"),
		Note:         r.Str("note"),
	}
	for _, ir := range r.Records("items") {
		it := Item{
			PartID:   ir.Str("partId"),
			PartName: ir.Str("partName"),
		}
		if q, ok := ir.Int("quantity"); ok {
			it.Quantity = q
		}
		price, ok := ir.Decimal("price")
		if !ok {
			price, _ = ir.Decimal("unitPrice")
		}
		it.Price = clampZero(price)
		op.Items = append(op.Items, it)
	}
	if disc, ok := r.Decimal("discount"); ok {
		op.Discount = clampZero(disc)
	}

	subtotal := decimal.Zero
	for _, it := range op.Items {
		subtotal = subtotal.Add(it.Total())
	}
	op.TotalPrice = clampZero(subtotal.Sub(op.Discount))

	status := PaymentStatus(strings.ToLower(r.Str("paymentStatus")))
	paid, hasPaid := r.Decimal("paidAmount")
	switch {
	case hasPaid:
		op.PaidAmount = decimal.Min(clampZero(paid), op.TotalPrice)
	case status == StatusPaid:
		op.PaidAmount = op.TotalPrice
	default:
		op.PaidAmount = decimal.Zero
	}
	switch status {
	case StatusPaid, StatusPartial, StatusUnpaid:
		op.PaymentStatus = status
	case "":
		op.PaymentStatus = deriveStatus(op.TotalPrice, op.PaidAmount)
	default:
		return Operation{}, invalid("operation", "paymentStatus", "oneof")
	}

	if err := checkStruct("operation", op); err != nil {
		return Operation{}, err
	}
	return op, nil
}

func deriveStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// =============================================================================
// TRANSACTION
// =============================================================================

// ValidateTransaction requires a customer id, a positive amount and a type
// of payment or debt.
func ValidateTransaction(r Record, now time.Time) (Transaction, error) {
	tx := Transaction{
		ID:         ensureID("tx", r.Str("id")),
		CustomerID: r.Str("customerId"),
		Type:       TransactionType(strings.ToLower(r.Str("type"))),
		Note:       r.Str("note"),
		Timestamp:  timeOr(r, "timestamp", now),
	}
	if tx.CustomerID == "" {
		return Transaction{}, invalid("transaction", "customerId", "required")
	}
	amount, ok := r.Decimal("amount")
	if !ok || !amount.IsPositive() {
		return Transaction{}, invalid("transaction", "amount", "must_be_positive")
	}
	tx.Amount = amount
	if err := checkStruct("transaction", tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
