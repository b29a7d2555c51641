/*
replay.go - Rebuild balances and stock from history

PURPOSE:
  The stored Customer.Balance and Part.Quantity are running totals. These
  functions recompute them from scratch so the running totals can be
  checked:

    balance(c)  = c.OpeningBalance + sum(op effects) + sum(tx effects)
    quantity(p) = sum(stock adjustments) - sum(item quantities sold)

  Audit compares the two and lists every mismatch. A healthy document has
  none, for every reachable state.
*/
package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ReplayBalances recomputes every known customer's balance from history.
func ReplayBalances(doc *Document) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(doc.Customers))
	for _, c := range doc.Customers {
		out[c.ID] = c.OpeningBalance
	}
	eff := newEffects()
	for _, op := range doc.Operations {
		eff.addOperation(op, +1)
	}
	for _, tx := range doc.Transactions {
		eff.addTransaction(tx, +1)
	}
	for id, delta := range eff.balance {
		if start, ok := out[id]; ok {
			out[id] = start.Add(delta)
		}
	}
	return out
}

// ReplayStock recomputes every known part's quantity from history.
func ReplayStock(doc *Document) map[string]int {
	out := make(map[string]int, len(doc.Parts))
	for _, p := range doc.Parts {
		out[p.ID] = 0
	}
	eff := newEffects()
	for _, adj := range doc.StockAdjustments {
		eff.addStock(adj.PartID, adj.Delta)
	}
	for _, op := range doc.Operations {
		eff.addOperation(op, +1)
	}
	for id, delta := range eff.stock {
		if _, ok := out[id]; ok {
			out[id] += delta
		}
	}
	return out
}

// Discrepancy is a running total that disagrees with its replay.
type Discrepancy struct {
	Entity   string `json:"entity"` // "customer" or "part"
	ID       string `json:"id"`
	Name     string `json:"name"`
	Stored   string `json:"stored"`
	Replayed string `json:"replayed"`
}

// Audit lists every customer balance and part quantity that does not match
// its replay, in collection order.
func Audit(doc *Document) []Discrepancy {
	var out []Discrepancy
	balances := ReplayBalances(doc)
	for _, c := range doc.Customers {
		if want := balances[c.ID]; !want.Equal(c.Balance) {
			out = append(out, Discrepancy{
				Entity:   "customer",
				ID:       c.ID,
				Name:     c.Name,
				Stored:   c.Balance.String(),
				Replayed: want.String(),
			})
		}
	}
	stock := ReplayStock(doc)
	for _, p := range doc.Parts {
		if want := stock[p.ID]; want != p.Quantity {
			out = append(out, Discrepancy{
				Entity:   "part",
				ID:       p.ID,
				Name:     p.Name,
				Stored:   strconv.Itoa(p.Quantity),
				Replayed: strconv.Itoa(want),
			})
		}
	}
	return out
}
