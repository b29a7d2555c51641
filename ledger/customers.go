/*
customers.go - Resolve-or-create and the UI submission path

MATCHING ORDER (first hit wins, deterministic):
  1. id         - the draft names an existing customer id
  2. name       - exact match after NormalizeName
  3. phone      - same phone digits (a trailing-digits match covers a
                  country code typed on one side only)
  4. substring  - one normalized name contains the other; flagged
                  NeedsReview because it is lossy
  5. created    - nothing matched: a new customer is added

  Within one step, the earliest customer in collection order wins.
*/
package ledger

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type MatchKind string

const (
	MatchID        MatchKind = "id"
	MatchName      MatchKind = "name"
	MatchPhone     MatchKind = "phone"
	MatchSubstring MatchKind = "substring"
	MatchCreated   MatchKind = "created"
)

// minPhoneSuffix is the shortest digit run accepted for a trailing match.
const minPhoneSuffix = 7

// minSubstringRunes keeps one- and two-letter fragments, typed or stored,
// from matching everybody.
const minSubstringRunes = 3

// ResolveCustomer finds an existing customer for a free-typed name and
// phone. ok is false when nothing matched.
func ResolveCustomer(doc *Document, name, phone string) (Customer, MatchKind, bool) {
	key := NormalizeName(name)
	if key != "" {
		for _, c := range doc.Customers {
			if NormalizeName(c.Name) == key {
				return c, MatchName, true
			}
		}
	}
	if digits := PhoneDigits(phone); digits != "" {
		for _, c := range doc.Customers {
			if samePhone(PhoneDigits(c.Phone), digits) {
				return c, MatchPhone, true
			}
		}
	}
	if utf8.RuneCountInString(key) >= minSubstringRunes {
		for _, c := range doc.Customers {
			other := NormalizeName(c.Name)
			if utf8.RuneCountInString(other) < minSubstringRunes {
				continue
			}
			if strings.Contains(other, key) || strings.Contains(key, other) {
				return c, MatchSubstring, true
			}
		}
	}
	return Customer{}, "", false
}

func samePhone(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= minPhoneSuffix && strings.HasSuffix(long, short)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitResult reports what SubmitOperation did besides adding the operation.
type SubmitResult struct {
	Operation   Operation       `json:"operation"`
	Customer    Customer        `json:"customer"`
	Match       MatchKind       `json:"match"`
	NeedsReview bool            `json:"needsReview"`
	Credit      decimal.Decimal `json:"credit"`
	CreditTx    *Transaction    `json:"creditTransaction,omitempty"`
}

// SubmitOperation is the UI's sale entry point. draft is an operation record
// that may name its customer by customerId, or by customerName and
// customerPhone. With applyCredit set, the customer's existing credit is
// spent on the unpaid part of the sale and recorded as a linked debt.
//
// Customer resolution, customer creation, credit and the operation itself
// are one transition: a validation failure leaves no new customer behind.
func (e *Engine) SubmitOperation(ctx context.Context, draft Record) (SubmitResult, error) {
	var res SubmitResult
	_, err := e.mutate(ctx, "submit_operation", func(c *change) (bool, error) {
		r := maps.Clone(draft)
		if r == nil {
			r = Record{}
		}

		cust, match, err := c.resolveOrCreate(r)
		if err != nil {
			return false, err
		}
		r["customerId"] = cust.ID
		r["customerName"] = cust.Name

		op, err := ValidateOperation(r, c.local())
		if err != nil {
			return false, err
		}
		// a paid operation has no balance effect to offset
		if applyCredit, _ := r["applyCredit"].(bool); applyCredit && op.PaymentStatus != StatusPaid {
			res.Credit = PlanCredit(cust.Balance, op.TotalPrice.Sub(op.PaidAmount))
		}
		if res.Credit.IsPositive() {
			op.PaidAmount = op.PaidAmount.Add(res.Credit)
			op.PaymentStatus = deriveStatus(op.TotalPrice, op.PaidAmount)
		}

		res.Operation = c.addOperation(op)
		if res.Credit.IsPositive() {
			tx := Transaction{
				ID:          ensureID("tx", ""),
				CustomerID:  cust.ID,
				Amount:      res.Credit,
				Type:        TxDebt,
				Note:        "credit applied",
				Timestamp:   res.Operation.Timestamp,
				OperationID: res.Operation.ID,
			}
			eff := newEffects()
			eff.addTransaction(tx, +1)
			c.doc.Transactions = append(c.doc.Transactions, tx)
			c.apply(eff)
			res.CreditTx = &tx
			c.notify(fmt.Sprintf("Credit of %s applied for %s", res.Credit.StringFixed(2), cust.Name), NotifyInfo)
		}

		res.Match = match
		res.NeedsReview = match == MatchSubstring
		if res.NeedsReview {
			c.notify(fmt.Sprintf("Customer %q matched to %q by partial name, please review",
				r.Str("typedName"), cust.Name), NotifyWarning)
		}
		res.Customer, _ = c.doc.Customer(cust.ID)
		return true, nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// resolveOrCreate picks the draft's customer. It records the typed name
// under "typedName" for the review notification.
func (c *change) resolveOrCreate(r Record) (Customer, MatchKind, error) {
	if cu, ok := c.doc.Customer(r.Str("customerId")); ok {
		return cu, MatchID, nil
	}
	name, phone := r.Str("customerName"), r.Str("customerPhone")
	r["typedName"] = name
	if name == "" && PhoneDigits(phone) == "" {
		return Customer{}, "", ErrMissingCustomer
	}
	if cu, match, ok := ResolveCustomer(c.doc, name, phone); ok {
		return cu, match, nil
	}
	if name == "" {
		return Customer{}, "", invalid("customer", "name", "required")
	}
	cu, err := ValidateCustomer(Record{"name": name, "phone": phone}, c.local())
	if err != nil {
		return Customer{}, "", err
	}
	cu = c.addCustomer(cu)
	c.notify(fmt.Sprintf("New customer %s added", cu.Name), NotifyInfo)
	return cu, MatchCreated, nil
}
