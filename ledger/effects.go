/*
effects.go - Stock and balance effect model

PURPOSE:
  Every cross-entity side effect is expressed as an effects value: a stock
  delta per part and a balance delta per customer. Mutations compute the
  net effects against ONE snapshot of the document and apply them once.

  add:    apply(new)
  delete: apply(-old)
  update: apply(-old + new)

  Because update nets both sides before touching any part or customer, a
  part or customer that appears in both the old and new operation is
  adjusted exactly once by the difference, never twice.

SIGN CONVENTION:
  An operation decrements stock by each item quantity and adds
  (total - paid) to the customer's balance, or nothing if fully paid.
  A debt adds its amount; a payment subtracts it.
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type effects struct {
	stock   map[string]int
	balance map[string]decimal.Decimal
}

func newEffects() effects {
	return effects{stock: map[string]int{}, balance: map[string]decimal.Decimal{}}
}

func (e effects) addStock(partID string, delta int) {
	if partID == "" || delta == 0 {
		return
	}
	e.stock[partID] += delta
}

func (e effects) addBalance(customerID string, delta decimal.Decimal) {
	if customerID == "" || delta.IsZero() {
		return
	}
	e.balance[customerID] = e.balance[customerID].Add(delta)
}

// addOperation adds (sign=+1) or removes (sign=-1) an operation's effects.
func (e effects) addOperation(op Operation, sign int) {
	for _, it := range op.Items {
		e.addStock(it.PartID, -sign*it.Quantity)
	}
	eff := op.BalanceEffect()
	if sign < 0 {
		eff = eff.Neg()
	}
	e.addBalance(op.CustomerID, eff)
}

func (e effects) addTransaction(tx Transaction, sign int) {
	eff := tx.BalanceEffect()
	if sign < 0 {
		eff = eff.Neg()
	}
	e.addBalance(tx.CustomerID, eff)
}

// resolveItems fills in missing part ids by a case-insensitive name match
// against the current parts. Items that still have no id keep an empty
// PartID and carry no stock effect.
func resolveItems(doc *Document, items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		if it.PartID != "" && doc.partIndex(it.PartID) < 0 && it.PartName != "" {
			// stale id: fall through to name matching
			it.PartID = ""
		}
		if it.PartID == "" && it.PartName != "" {
			for _, p := range doc.Parts {
				if sameName(p.Name, it.PartName) {
					it.PartID = p.ID
					break
				}
			}
		}
		if it.PartName == "" {
			if p, ok := doc.Part(it.PartID); ok {
				it.PartName = p.Name
			}
		}
		out[i] = it
	}
	return out
}

// apply writes the effects into the document (in collection order, so
// notifications come out deterministic) and queues low-stock alerts.
func (c *change) apply(e effects) {
	for i := range c.doc.Parts {
		p := &c.doc.Parts[i]
		delta, ok := e.stock[p.ID]
		if !ok || delta == 0 {
			continue
		}
		p.Quantity += delta
		p.UpdatedAt = c.now
		if delta < 0 {
			c.checkLowStock(*p)
		}
	}
	for i := range c.doc.Customers {
		cu := &c.doc.Customers[i]
		delta, ok := e.balance[cu.ID]
		if !ok || delta.IsZero() {
			continue
		}
		cu.Balance = cu.Balance.Add(delta)
		cu.UpdatedAt = c.now
	}
}

func (c *change) checkLowStock(p Part) {
	switch {
	case p.Quantity < 0:
		c.notify(fmt.Sprintf("Stock of %s is negative (%d)", p.Name, p.Quantity), NotifyDanger)
	case p.LowStock():
		c.notify(fmt.Sprintf("Low stock: %s has %d left (threshold %d)", p.Name, p.Quantity, p.Threshold), NotifyWarning)
	}
}
