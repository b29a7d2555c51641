package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CollectedTotal is the cash collected on date (YYYY-MM-DD in loc):
// operations' paid amounts, plus payments, minus debts.
func CollectedTotal(doc *Document, date string, loc *time.Location) decimal.Decimal {
	return DailySummary(doc, date, loc).Collected
}

// DailyReport aggregates one calendar day.
type DailyReport struct {
	Date       string          `json:"date"`
	Operations int             `json:"operations"`
	Sales      decimal.Decimal `json:"sales"`
	Discounts  decimal.Decimal `json:"discounts"`
	Paid       decimal.Decimal `json:"paid"`
	Payments   decimal.Decimal `json:"payments"`
	Debts      decimal.Decimal `json:"debts"`
	Collected  decimal.Decimal `json:"collected"`
	Closure    *DayClosure     `json:"closure,omitempty"`
}

func DailySummary(doc *Document, date string, loc *time.Location) DailyReport {
	r := DailyReport{Date: date}
	for _, op := range doc.Operations {
		if dateOf(op.Timestamp, loc) != date {
			continue
		}
		r.Operations++
		r.Sales = r.Sales.Add(op.TotalPrice)
		r.Discounts = r.Discounts.Add(op.Discount)
		r.Paid = r.Paid.Add(op.PaidAmount)
	}
	for _, tx := range doc.Transactions {
		if dateOf(tx.Timestamp, loc) != date {
			continue
		}
		switch tx.Type {
		case TxPayment:
			r.Payments = r.Payments.Add(tx.Amount)
		case TxDebt:
			r.Debts = r.Debts.Add(tx.Amount)
		}
	}
	r.Collected = r.Paid.Add(r.Payments).Sub(r.Debts)
	for i := len(doc.DayClosures) - 1; i >= 0; i-- {
		if doc.DayClosures[i].Date == date {
			closure := doc.DayClosures[i]
			r.Closure = &closure
			break
		}
	}
	return r
}

// =============================================================================
// CUSTOMER HISTORY
// =============================================================================

type HistoryKind string

const (
	HistoryOperation   HistoryKind = "operation"
	HistoryTransaction HistoryKind = "transaction"
)

// HistoryEntry is one line of a customer's statement. Owed is what the
// entry added to the balance; Paid is what it took off or settled.
type HistoryEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      HistoryKind     `json:"kind"`
	RefID     string          `json:"refId"`
	Label     string          `json:"label"`
	Owed      decimal.Decimal `json:"owed"`
	Paid      decimal.Decimal `json:"paid"`
}

// CustomerHistory merges the customer's operations and transactions, newest
// first.
func CustomerHistory(doc *Document, customerID string) []HistoryEntry {
	var out []HistoryEntry
	if customerID == "" {
		return out
	}
	for _, op := range doc.Operations {
		if op.CustomerID != customerID {
			continue
		}
		out = append(out, HistoryEntry{
			Timestamp: op.Timestamp,
			Kind:      HistoryOperation,
			RefID:     op.ID,
			Label:     operationLabel(op),
			Owed:      op.BalanceEffect(),
			Paid:      op.PaidAmount,
		})
	}
	for _, tx := range doc.Transactions {
		if tx.CustomerID != customerID {
			continue
		}
		e := HistoryEntry{
			Timestamp: tx.Timestamp,
			Kind:      HistoryTransaction,
			RefID:     tx.ID,
			Label:     transactionLabel(tx),
		}
		if tx.Type == TxPayment {
			e.Paid = tx.Amount
		} else {
			e.Owed = tx.Amount
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b HistoryEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

func operationLabel(op Operation) string {
	names := make([]string, 0, len(op.Items))
	for _, it := range op.Items {
		name := it.PartName
		if name == "" {
			name = it.PartID
		}
		names = append(names, fmt.Sprintf("%s x%d", name, it.Quantity))
	}
	return "Sale: " + strings.Join(names, ", ")
}

func transactionLabel(tx Transaction) string {
	label := "Debt"
	if tx.Type == TxPayment {
		label = "Payment"
	}
	if tx.Note != "" {
		label += ": " + tx.Note
	}
	return label
}
