/*
migrate.go - Legacy document -> current document

STATES:
  legacy  (no version field, or version < CurrentVersion; operations may
           carry a single part inline: partId/partName/quantity/price)
  current (CurrentVersion; multi-item operations, opening balances, stock
           adjustments)

  legacy --Migrate--> current is one-way and one-shot.

PIPELINE:
  1. start from a fresh document, carry settings over verbatim, backfill
     missing passwords
  2. run every legacy record through its validator; a failure drops that
     record (counted) and never aborts the run
  3. rewrite inline single-part operations into the items shape, with a
     unit price of legacy total / legacy quantity
  4. derive opening balances and opening stock so that replaying history
     reproduces the legacy running totals exactly

  Migrate is pure: it does not read or write storage. Backing up the
  legacy blob and persisting the result is the store's job.
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityCounts tallies one collection. Kept includes Repaired.
type EntityCounts struct {
	Kept     int `json:"kept"`
	Repaired int `json:"repaired"`
	Dropped  int `json:"dropped"`
}

// MigrationReport summarizes a migration for the one-time UI message.
type MigrationReport struct {
	FromVersion         int          `json:"fromVersion"`
	Customers           EntityCounts `json:"customers"`
	Parts               EntityCounts `json:"parts"`
	Operations          EntityCounts `json:"operations"`
	Transactions        EntityCounts `json:"transactions"`
	ConvertedOperations int          `json:"convertedOperations"`
	OpeningBalances     int          `json:"openingBalances"`
	OpeningStock        int          `json:"openingStock"`
	PasswordsBackfilled bool         `json:"passwordsBackfilled"`
}

func (r MigrationReport) Repaired() int {
	return r.Customers.Repaired + r.Parts.Repaired + r.Operations.Repaired + r.Transactions.Repaired
}

func (r MigrationReport) Dropped() int {
	return r.Customers.Dropped + r.Parts.Dropped + r.Operations.Dropped + r.Transactions.Dropped
}

func (r MigrationReport) Summary() string {
	return fmt.Sprintf("Data upgraded to version %d: %d customers, %d parts, %d operations, %d transactions kept; %d repaired, %d dropped",
		CurrentVersion, r.Customers.Kept, r.Parts.Kept, r.Operations.Kept, r.Transactions.Kept, r.Repaired(), r.Dropped())
}

// DocumentVersion reads the version field of a decoded document; legacy
// documents without one report 0.
func DocumentVersion(raw map[string]any) int {
	v, ok := Record(raw).Int("version")
	if !ok {
		return 0
	}
	return v
}

// Migrate rebuilds a legacy document as a current one.
func Migrate(legacy map[string]any, now time.Time, d Defaults) (*Document, MigrationReport) {
	src := Record(legacy)
	m := &migration{
		doc:    NewDocument(now, Defaults{}),
		now:    now,
		report: MigrationReport{FromVersion: DocumentVersion(legacy)},
	}
	if meta, ok := legacy["metadata"].(map[string]any); ok {
		if created, ok := Record(meta).TimeIn("createdAt", now.Location()); ok {
			m.doc.Metadata.CreatedAt = created
		}
	}

	m.settings(legacy["settings"])
	m.report.PasswordsBackfilled = m.doc.Settings.BackfillPasswords(d)

	legacyBalances := m.customers(src.Records("customers"))
	m.parts(src.Records("parts"))
	m.operations(src.Records("operations"))
	m.transactions(src.Records("transactions"))
	m.notifications(src.Records("notifications"))
	m.openingBalances(legacyBalances)
	m.openingStock()

	if date := src.Str("activeSessionDate"); date != "" {
		m.doc.ActiveSessionDate = date
	}
	if lr, ok := legacy["license"].(map[string]any); ok {
		lic := Record(lr)
		if key := lic.Str("key"); key != "" {
			m.doc.License = &License{Key: key, Owner: lic.Str("owner")}
			m.doc.License.ActivatedAt, _ = lic.TimeIn("activatedAt", now.Location())
		}
	}

	m.doc.Metadata.LastModified = now
	note := Notification{
		ID:   ensureID("note", ""),
		Text: m.report.Summary(),
		Type: NotifyInfo,
		Time: now.Format("2006/01/02 15:04"),
	}
	if m.report.Dropped() > 0 {
		note.Type = NotifyWarning
	}
	m.doc.appendNotifications([]Notification{note})
	return m.doc, m.report
}

type migration struct {
	doc    *Document
	now    time.Time
	report MigrationReport
}

// uniqueID repairs a blank or duplicate id and reports whether it did.
func uniqueID(seen map[string]bool, prefix, id string) (string, bool) {
	repaired := false
	if id == "" || seen[id] {
		id = ensureID(prefix, "")
		repaired = true
	}
	seen[id] = true
	return id, repaired
}

func (m *migration) settings(v any) {
	if v == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err == nil {
		m.doc.Settings = s
	}
}

// customers returns the legacy running balance of every kept customer that
// had one.
func (m *migration) customers(records []Record) map[string]decimal.Decimal {
	balances := map[string]decimal.Decimal{}
	seen := map[string]bool{}
	for _, r := range records {
		c, err := ValidateCustomer(r, m.now)
		if err != nil {
			m.report.Customers.Dropped++
			continue
		}
		var repaired bool
		c.ID, repaired = uniqueID(seen, "cust", r.Str("id"))
		if repaired {
			m.report.Customers.Repaired++
		}
		if r.Has("balance") {
			balances[c.ID] = c.Balance
		}
		c.Balance = decimal.Zero
		c.OpeningBalance = decimal.Zero
		m.doc.Customers = append(m.doc.Customers, c)
		m.report.Customers.Kept++
	}
	return balances
}

func (m *migration) parts(records []Record) {
	seen := map[string]bool{}
	for _, r := range records {
		p, err := ValidatePart(r, m.now)
		if err != nil {
			m.report.Parts.Dropped++
			continue
		}
		var repaired bool
		p.ID, repaired = uniqueID(seen, "part", r.Str("id"))
		if repaired {
			m.report.Parts.Repaired++
		}
		m.doc.Parts = append(m.doc.Parts, p)
		m.report.Parts.Kept++
	}
}

func (m *migration) operations(records []Record) {
	seen := map[string]bool{}
	for _, r := range records {
		r, relinked := m.relinkCustomer(r)
		converted := false
		var legacyTotal decimal.Decimal
		if !r.Has("items") {
			r, legacyTotal, converted = inlineToItems(r)
		}
		op, err := ValidateOperation(r, m.now)
		if err != nil {
			m.report.Operations.Dropped++
			continue
		}
		if converted {
			// keep the legacy total rather than unit price x quantity, which
			// may be off by rounding
			op.TotalPrice = legacyTotal
			if paid, ok := r.Decimal("paidAmount"); ok {
				op.PaidAmount = decimal.Min(clampZero(paid), op.TotalPrice)
			} else if op.PaymentStatus == StatusPaid {
				op.PaidAmount = op.TotalPrice
			}
			if r.Str("paymentStatus") == "" {
				op.PaymentStatus = deriveStatus(op.TotalPrice, op.PaidAmount)
			}
			m.report.ConvertedOperations++
		}
		var repaired bool
		op.ID, repaired = uniqueID(seen, "op", r.Str("id"))
		if repaired || relinked {
			m.report.Operations.Repaired++
		}
		op.Items = resolveItems(m.doc, op.Items)
		if op.CustomerName == "" {
			if c, ok := m.doc.Customer(op.CustomerID); ok {
				op.CustomerName = c.Name
			}
		}
		m.doc.Operations = append(m.doc.Operations, op)
		m.report.Operations.Kept++
	}
}

// relinkCustomer points an operation whose customer id is blank or unknown
// at a kept customer with exactly the same normalized name.
func (m *migration) relinkCustomer(r Record) (Record, bool) {
	if _, ok := m.doc.Customer(r.Str("customerId")); ok {
		return r, false
	}
	name := NormalizeName(r.Str("customerName"))
	if name == "" {
		return r, false
	}
	for _, c := range m.doc.Customers {
		if NormalizeName(c.Name) == name {
			out := maps.Clone(r)
			out["customerId"] = c.ID
			return out, true
		}
	}
	return r, false
}

// inlineToItems rewrites a single-part legacy operation into the items
// shape. The legacy total is totalPrice, or price when totalPrice is
// missing.
func inlineToItems(r Record) (Record, decimal.Decimal, bool) {
	qty, ok := r.Int("quantity")
	if !ok || qty < 1 {
		return r, decimal.Zero, false
	}
	total, ok := r.Decimal("totalPrice")
	if !ok {
		total, ok = r.Decimal("price")
	}
	if !ok {
		return r, decimal.Zero, false
	}
	total = clampZero(total)
	unit := total.Div(decimal.NewFromInt(int64(qty))).Round(2)

	out := maps.Clone(r)
	out["items"] = []any{map[string]any{
		"partId":   r.Str("partId"),
		"partName": r.Str("partName"),
		"quantity": qty,
		"price":    unit,
	}}
	delete(out, "discount")
	return out, total, true
}

func (m *migration) transactions(records []Record) {
	seen := map[string]bool{}
	for _, r := range records {
		tx, err := ValidateTransaction(r, m.now)
		if err != nil {
			m.report.Transactions.Dropped++
			continue
		}
		var repaired bool
		tx.ID, repaired = uniqueID(seen, "tx", r.Str("id"))
		if repaired {
			m.report.Transactions.Repaired++
		}
		m.doc.Transactions = append(m.doc.Transactions, tx)
		m.report.Transactions.Kept++
	}
}

func (m *migration) notifications(records []Record) {
	notes := make([]Notification, 0, len(records))
	for _, r := range records {
		text := r.Str("text")
		if text == "" {
			continue
		}
		n := Notification{
			ID:   ensureID("note", r.Str("id")),
			Text: text,
			Type: NotificationType(strings.ToLower(r.Str("type"))),
			Time: r.Str("time"),
			Read: r["read"] == true,
		}
		switch n.Type {
		case NotifyInfo, NotifySuccess, NotifyWarning, NotifyDanger:
		default:
			n.Type = NotifyInfo
		}
		notes = append(notes, n)
	}
	m.doc.appendNotifications(notes)
}

// openingBalances sets each customer's opening balance so that replay
// lands on the legacy running balance. Customers without a legacy balance
// take the replayed value.
func (m *migration) openingBalances(legacy map[string]decimal.Decimal) {
	replayed := ReplayBalances(m.doc)
	for i := range m.doc.Customers {
		c := &m.doc.Customers[i]
		want, ok := legacy[c.ID]
		if !ok {
			want = replayed[c.ID]
		}
		c.OpeningBalance = want.Sub(replayed[c.ID])
		c.Balance = want
		if !c.OpeningBalance.IsZero() {
			m.report.OpeningBalances++
		}
	}
}

// openingStock records the stock each part must have started with for its
// legacy quantity to equal the replay of the migrated operations.
func (m *migration) openingStock() {
	replayed := ReplayStock(m.doc)
	for _, p := range m.doc.Parts {
		delta := p.Quantity - replayed[p.ID]
		if delta == 0 {
			continue
		}
		m.doc.StockAdjustments = append(m.doc.StockAdjustments, StockAdjustment{
			ID:        ensureID("adj", ""),
			PartID:    p.ID,
			Delta:     delta,
			Note:      "opening stock (migrated)",
			Timestamp: m.now,
		})
		m.report.OpeningStock++
	}
}
