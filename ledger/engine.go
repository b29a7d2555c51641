/*
engine.go - Mutating entry points of the ledger

PURPOSE:
  The Engine is the only writer of the Document. Each entry point is one
  atomic state transition:

    1. clone the current document
    2. compute every change (including side effects) on the clone
    3. commit the clone whole, then persist it
    4. deliver queued notifications to the sink

  A validation error in step 2 discards the clone; nothing is committed and
  no notification is sent. A reference miss (unknown id) also discards the
  clone and returns found=false.

CONCURRENCY:
  One in-memory owner, one writer. The mutex serializes entry points that
  arrive from concurrent HTTP handlers or the rollover scheduler; it is not
  a multi-writer protocol.

PERSISTENCE:
  Commit failures are logged and reported to the observer; they never undo
  the in-memory transition and are never returned to the caller.

SEE ALSO:
  - effects.go:  stock/balance effects
  - session.go:  session open/close
  - customers.go: resolve-or-create for SubmitOperation
*/
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStore owns the document and its persistence.
type DocumentStore interface {
	// Document returns the current in-memory document. Callers must not
	// modify it.
	Document() *Document

	// Commit replaces the in-memory document and persists it.
	Commit(ctx context.Context, doc *Document) error
}

// Observer receives engine outcomes, e.g. for metrics.
type Observer interface {
	ObserveMutation(op, result string)
	ObserveLowStock(count int)
}

type nopObserver struct{}

func (nopObserver) ObserveMutation(string, string) {}
func (nopObserver) ObserveLowStock(int)            {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	mu       sync.Mutex
	docs     DocumentStore
	sink     Sink
	observer Observer
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Engine)

// WithSink delivers notifications to s after each committed transition.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the shop's calendar time zone.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithObserver reports mutation outcomes.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func NewEngine(docs DocumentStore, opts ...Option) *Engine {
	e := &Engine{
		docs:     docs,
		sink:     Discard,
		observer: nopObserver{},
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns a private copy of the current document for rendering.
func (e *Engine) Snapshot() *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs.Document().Clone()
}

// Exclusive runs fn while no transition is in flight. Used for restore and
// import, which replace the document wholesale.
func (e *Engine) Exclusive(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// Today is the shop's current calendar date.
func (e *Engine) Today() string { return dateOf(e.now(), e.loc) }

// Now is the engine's clock in the shop's time zone.
func (e *Engine) Now() time.Time { return e.now().In(e.loc) }

// change is the transition under construction.
type change struct {
	doc   *Document
	now   time.Time
	loc   *time.Location
	notes []Notification
}

// local is the transition's clock in the shop's time zone.
func (c *change) local() time.Time { return c.now.In(c.loc) }

func (c *change) notify(text string, kind NotificationType) {
	c.notes = append(c.notes, Notification{
		ID:   ensureID("note", ""),
		Text: text,
		Type: kind,
		Time: c.local().Format("2006/01/02 15:04"),
	})
}

// mutate runs fn against a clone of the current document and commits it if
// fn reports a change without error.
func (e *Engine) mutate(ctx context.Context, op string, fn func(c *change) (bool, error)) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &change{doc: e.docs.Document().Clone(), now: e.now(), loc: e.loc}
	changed, err := fn(c)
	if err != nil {
		e.observer.ObserveMutation(op, "error")
		return false, err
	}
	if !changed {
		e.observer.ObserveMutation(op, "noop")
		return false, nil
	}

	c.doc.appendNotifications(c.notes)
	if err := e.docs.Commit(ctx, c.doc); err != nil {
		log.Printf("[Ledger] WARN: %s applied in memory but not persisted: %v", op, err)
	}
	for _, n := range c.notes {
		e.sink.Emit(n.Text, n.Type)
	}
	e.observer.ObserveMutation(op, "ok")
	e.observer.ObserveLowStock(countLowStock(c.doc))
	return true, nil
}

func countLowStock(doc *Document) int {
	n := 0
	for _, p := range doc.Parts {
		if p.LowStock() {
			n++
		}
	}
	return n
}

// =============================================================================
// OPERATIONS
// =============================================================================

// AddOperation appends a pre-validated operation, decrements stock per item,
// adds (total - paid) to the customer's balance unless fully paid, and opens
// a session if none is active.
func (e *Engine) AddOperation(ctx context.Context, op Operation) (Operation, error) {
	var added Operation
	_, err := e.mutate(ctx, "add_operation", func(c *change) (bool, error) {
		added = c.addOperation(op)
		return true, nil
	})
	return added, err
}

func (c *change) addOperation(op Operation) Operation {
	op.ID = unusedID("op", op.ID, func(id string) bool { return c.doc.operationIndex(id) >= 0 })
	if op.Timestamp.IsZero() {
		op.Timestamp = c.now
	}
	op.Items = resolveItems(c.doc, op.Items)
	if cu, ok := c.doc.Customer(op.CustomerID); ok && op.CustomerName == "" {
		op.CustomerName = cu.Name
	}

	eff := newEffects()
	eff.addOperation(op, +1)
	c.doc.Operations = append(c.doc.Operations, op)
	c.apply(eff)
	c.openSession()
	return op
}

// UpdateOperation replaces operation id with draft. The old effects are
// reverted and the new ones applied from the same prior snapshot, as one
// net adjustment. Credit spent on the operation is kept or returned, see
// relinkCredit. Returns false if id is unknown.
func (e *Engine) UpdateOperation(ctx context.Context, id string, draft Operation) (bool, error) {
	return e.mutate(ctx, "update_operation", func(c *change) (bool, error) {
		i := c.doc.operationIndex(id)
		if i < 0 {
			return false, nil
		}
		old := c.doc.Operations[i]

		next := draft
		next.ID = old.ID
		if next.Timestamp.IsZero() {
			next.Timestamp = old.Timestamp
		}
		next.Items = resolveItems(c.doc, next.Items)
		if next.CustomerName == "" {
			if cu, ok := c.doc.Customer(next.CustomerID); ok {
				next.CustomerName = cu.Name
			} else if next.CustomerID == old.CustomerID {
				next.CustomerName = old.CustomerName
			}
		}

		eff := newEffects()
		eff.addOperation(old, -1)
		eff.addOperation(next, +1)
		c.doc.Operations[i] = next
		c.relinkCredit(old, next, eff)
		c.apply(eff)
		return true, nil
	})
}

// relinkCredit brings the credit transactions linked to an edited operation
// in line with the new version. Credit stays spent only while the customer
// is unchanged, and never beyond the new paid amount; the rest goes back to
// the customer it came from. Linked transactions collapse into the first one.
func (c *change) relinkCredit(old, next Operation, eff effects) {
	spent := decimal.Zero
	first := -1
	kept := c.doc.Transactions[:0:0]
	for _, tx := range c.doc.Transactions {
		if tx.OperationID == old.ID {
			eff.addTransaction(tx, -1)
			spent = spent.Add(tx.Amount)
			if first >= 0 {
				continue
			}
			first = len(kept)
		}
		kept = append(kept, tx)
	}
	if first < 0 {
		return
	}

	keep := decimal.Zero
	if next.CustomerID == old.CustomerID {
		keep = decimal.Min(spent, next.PaidAmount)
	}
	if keep.IsPositive() {
		kept[first].Amount = keep
		eff.addTransaction(kept[first], +1)
	} else {
		kept = append(kept[:first:first], kept[first+1:]...)
	}
	c.doc.Transactions = kept

	if back := spent.Sub(keep); back.IsPositive() {
		name := old.CustomerName
		if name == "" {
			name = old.CustomerID
		}
		c.notify(fmt.Sprintf("Credit of %s returned to %s", back.StringFixed(2), name), NotifyInfo)
	}
}

// DeleteOperation reverts the operation's stock and balance effects and
// removes it. Returns false if id is unknown.
func (e *Engine) DeleteOperation(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, "delete_operation", func(c *change) (bool, error) {
		i := c.doc.operationIndex(id)
		if i < 0 {
			return false, nil
		}
		old := c.doc.Operations[i]

		eff := newEffects()
		eff.addOperation(old, -1)
		c.doc.Operations = append(c.doc.Operations[:i:i], c.doc.Operations[i+1:]...)
		kept := c.doc.Transactions[:0:0]
		for _, tx := range c.doc.Transactions {
			if tx.OperationID == old.ID {
				eff.addTransaction(tx, -1)
				continue
			}
			kept = append(kept, tx)
		}
		c.doc.Transactions = kept
		c.apply(eff)

		name := old.CustomerName
		if name == "" {
			name = old.CustomerID
		}
		c.notify(fmt.Sprintf("Operation for %s deleted (total %s)", name, old.TotalPrice.StringFixed(2)), NotifyInfo)
		return true, nil
	})
}

// =============================================================================
// PARTS
// =============================================================================

// PartPatch is a partial update. Quantity is deliberately absent: stock only
// moves through operations and RestockPart.
type PartPatch struct {
	Name      *string          `json:"name,omitempty"`
	Code      *string          `json:"code,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Threshold *int             `json:"threshold,omitempty"`
}

// AddPart appends a pre-validated part. A non-zero starting quantity is
// recorded as an opening stock adjustment.
func (e *Engine) AddPart(ctx context.Context, p Part) (Part, error) {
	var added Part
	_, err := e.mutate(ctx, "add_part", func(c *change) (bool, error) {
		p.ID = unusedID("part", p.ID, func(id string) bool { return c.doc.partIndex(id) >= 0 })
		if p.CreatedAt.IsZero() {
			p.CreatedAt = c.now
		}
		p.UpdatedAt = c.now
		c.doc.Parts = append(c.doc.Parts, p)
		if p.Quantity != 0 {
			c.doc.StockAdjustments = append(c.doc.StockAdjustments, StockAdjustment{
				ID:        ensureID("adj", ""),
				PartID:    p.ID,
				Delta:     p.Quantity,
				Note:      "opening stock",
				Timestamp: c.now,
			})
		}
		added = p
		return true, nil
	})
	return added, err
}

// UpdatePart merges patch into part id. Returns false if id is unknown.
func (e *Engine) UpdatePart(ctx context.Context, id string, patch PartPatch) (bool, error) {
	return e.mutate(ctx, "update_part", func(c *change) (bool, error) {
		i := c.doc.partIndex(id)
		if i < 0 {
			return false, nil
		}
		p := &c.doc.Parts[i]
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return false, invalid("part", "name", "required")
			}
			p.Name = name
		}
		if patch.Code != nil {
			p.Code = strings.TrimSpace(*patch.Code)
		}
		if patch.Price != nil {
			p.Price = clampZero(*patch.Price)
		}
		if patch.Threshold != nil {
			p.Threshold = max(*patch.Threshold, 0)
		}
		p.UpdatedAt = c.now
		return true, nil
	})
}

// RestockPart is the direct stock-add path: it adjusts quantity by delta
// and records the adjustment. Returns false if id is unknown.
func (e *Engine) RestockPart(ctx context.Context, id string, delta int, note string) (bool, error) {
	return e.mutate(ctx, "restock_part", func(c *change) (bool, error) {
		if delta == 0 {
			return false, invalid("part", "quantity", "must_be_nonzero")
		}
		i := c.doc.partIndex(id)
		if i < 0 {
			return false, nil
		}
		c.doc.StockAdjustments = append(c.doc.StockAdjustments, StockAdjustment{
			ID:        ensureID("adj", ""),
			PartID:    id,
			Delta:     delta,
			Note:      strings.TrimSpace(note),
			Timestamp: c.now,
		})
		eff := newEffects()
		eff.addStock(id, delta)
		c.apply(eff)
		return true, nil
	})
}

// DeletePart removes the part. Operations that sold it keep their snapshot.
func (e *Engine) DeletePart(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, "delete_part", func(c *change) (bool, error) {
		i := c.doc.partIndex(id)
		if i < 0 {
			return false, nil
		}
		c.doc.Parts = append(c.doc.Parts[:i:i], c.doc.Parts[i+1:]...)
		return true, nil
	})
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerPatch is a partial update. Balance is absent: it only moves
// through operations and transactions.
type CustomerPatch struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// AddCustomer appends a customer. The id is guaranteed non-empty and unique;
// a supplied id that is already taken is replaced. A supplied non-zero balance becomes the customer's opening balance.
func (e *Engine) AddCustomer(ctx context.Context, cu Customer) (Customer, error) {
	var added Customer
	_, err := e.mutate(ctx, "add_customer", func(c *change) (bool, error) {
		added = c.addCustomer(cu)
		return true, nil
	})
	return added, err
}

func (c *change) addCustomer(cu Customer) Customer {
	cu.ID = unusedID("cust", cu.ID, func(id string) bool { return c.doc.customerIndex(id) >= 0 })
	if !cu.Balance.IsZero() && cu.OpeningBalance.IsZero() {
		cu.OpeningBalance = cu.Balance
	}
	cu.Balance = cu.OpeningBalance
	if cu.CreatedAt.IsZero() {
		cu.CreatedAt = c.now
	}
	cu.UpdatedAt = c.now
	c.doc.Customers = append(c.doc.Customers, cu)
	return cu
}

// UpdateCustomer merges patch into customer id. Returns false if id is unknown.
func (e *Engine) UpdateCustomer(ctx context.Context, id string, patch CustomerPatch) (bool, error) {
	return e.mutate(ctx, "update_customer", func(c *change) (bool, error) {
		i := c.doc.customerIndex(id)
		if i < 0 {
			return false, nil
		}
		cu := &c.doc.Customers[i]
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return false, invalid("customer", "name", "required")
			}
			cu.Name = name
		}
		if patch.Phone != nil {
			cu.Phone = strings.TrimSpace(*patch.Phone)
		}
		if patch.Address != nil {
			cu.Address = strings.TrimSpace(*patch.Address)
		}
		cu.UpdatedAt = c.now
		return true, nil
	})
}

// DeleteCustomer removes the customer. History referencing it is kept.
func (e *Engine) DeleteCustomer(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, "delete_customer", func(c *change) (bool, error) {
		i := c.doc.customerIndex(id)
		if i < 0 {
			return false, nil
		}
		c.doc.Customers = append(c.doc.Customers[:i:i], c.doc.Customers[i+1:]...)
		return true, nil
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RecordDirectTransaction appends a payment or debt for one customer and
// applies its balance delta. It refuses, without changing anything, when
// customerID is blank or unknown: an omitted id must never turn into a
// change applied to other customers. ok reports whether it was recorded.
func (e *Engine) RecordDirectTransaction(ctx context.Context, customerID string, amount decimal.Decimal, typ TransactionType, note string) (tx Transaction, ok bool, err error) {
	customerID = strings.TrimSpace(customerID)
	ok, err = e.mutate(ctx, "record_transaction", func(c *change) (bool, error) {
		if customerID == "" {
			log.Printf("[Ledger] refused %s of %s: no customer id", typ, amount.String())
			return false, nil
		}
		if c.doc.customerIndex(customerID) < 0 {
			log.Printf("[Ledger] refused %s of %s: unknown customer %q", typ, amount.String(), customerID)
			return false, nil
		}
		if !amount.IsPositive() {
			return false, invalid("transaction", "amount", "must_be_positive")
		}
		if typ != TxPayment && typ != TxDebt {
			return false, invalid("transaction", "type", "oneof")
		}
		tx = Transaction{
			ID:         ensureID("tx", ""),
			CustomerID: customerID,
			Amount:     amount,
			Type:       typ,
			Note:       strings.TrimSpace(note),
			Timestamp:  c.now,
		}
		eff := newEffects()
		eff.addTransaction(tx, +1)
		c.doc.Transactions = append(c.doc.Transactions, tx)
		c.apply(eff)
		c.openSession()
		return true, nil
	})
	if !ok {
		tx = Transaction{}
	}
	return tx, ok, err
}

// DeleteTransaction removes the transaction and applies the exact inverse
// of its balance delta. Returns false if id is unknown.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, "delete_transaction", func(c *change) (bool, error) {
		i := c.doc.transactionIndex(id)
		if i < 0 {
			return false, nil
		}
		old := c.doc.Transactions[i]
		eff := newEffects()
		eff.addTransaction(old, -1)
		c.doc.Transactions = append(c.doc.Transactions[:i:i], c.doc.Transactions[i+1:]...)
		c.apply(eff)
		return true, nil
	})
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notify appends a notification outside of any other transition.
func (e *Engine) Notify(ctx context.Context, text string, kind NotificationType) error {
	_, err := e.mutate(ctx, "notify", func(c *change) (bool, error) {
		c.notify(text, kind)
		return true, nil
	})
	return err
}

// MarkNotificationsRead flags every notification as read.
func (e *Engine) MarkNotificationsRead(ctx context.Context) (bool, error) {
	return e.mutate(ctx, "read_notifications", func(c *change) (bool, error) {
		changed := false
		for i := range c.doc.Notifications {
			if !c.doc.Notifications[i].Read {
				c.doc.Notifications[i].Read = true
				changed = true
			}
		}
		return changed, nil
	})
}

// ClearNotifications drops all notifications.
func (e *Engine) ClearNotifications(ctx context.Context) (bool, error) {
	return e.mutate(ctx, "clear_notifications", func(c *change) (bool, error) {
		if len(c.doc.Notifications) == 0 {
			return false, nil
		}
		c.doc.Notifications = []Notification{}
		return true, nil
	})
}
