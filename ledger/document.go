package ledger

import (
	"maps"
	"slices"
	"time"
)

// maxNotifications bounds the notification list; older entries fall off.
const maxNotifications = 200

// Defaults holds the credentials a fresh or migrated document starts with.
type Defaults struct {
	LoginPassword string
	AdminPassword string
}

// NewDocument returns an empty current-version document.
func NewDocument(now time.Time, d Defaults) *Document {
	doc := &Document{
		Version:          CurrentVersion,
		Metadata:         Metadata{CreatedAt: now, LastModified: now},
		Customers:        []Customer{},
		Parts:            []Part{},
		Operations:       []Operation{},
		Transactions:     []Transaction{},
		Notifications:    []Notification{},
		StockAdjustments: []StockAdjustment{},
		DayClosures:      []DayClosure{},
	}
	doc.Settings.BackfillPasswords(d)
	return doc
}

// Clone returns a deep copy. Decimal values are immutable and are shared.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Customers = slices.Clone(d.Customers)
	c.Parts = slices.Clone(d.Parts)
	c.Transactions = slices.Clone(d.Transactions)
	c.Notifications = slices.Clone(d.Notifications)
	c.StockAdjustments = slices.Clone(d.StockAdjustments)
	c.DayClosures = slices.Clone(d.DayClosures)
	c.Operations = make([]Operation, len(d.Operations))
	for i, op := range d.Operations {
		op.Items = slices.Clone(op.Items)
		c.Operations[i] = op
	}
	if d.Operations == nil {
		c.Operations = nil
	}
	c.Settings.Extra = maps.Clone(d.Settings.Extra)
	if d.License != nil {
		lic := *d.License
		c.License = &lic
	}
	return &c
}

func (d *Document) partIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.Parts, func(p Part) bool { return p.ID == id })
}

func (d *Document) customerIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.Customers, func(c Customer) bool { return c.ID == id })
}

func (d *Document) operationIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.Operations, func(o Operation) bool { return o.ID == id })
}

func (d *Document) transactionIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.Transactions, func(t Transaction) bool { return t.ID == id })
}

// Part returns the part with the given id.
func (d *Document) Part(id string) (Part, bool) {
	if i := d.partIndex(id); i >= 0 {
		return d.Parts[i], true
	}
	return Part{}, false
}

// Customer returns the customer with the given id.
func (d *Document) Customer(id string) (Customer, bool) {
	if i := d.customerIndex(id); i >= 0 {
		return d.Customers[i], true
	}
	return Customer{}, false
}

// Operation returns the operation with the given id.
func (d *Document) Operation(id string) (Operation, bool) {
	if i := d.operationIndex(id); i >= 0 {
		return d.Operations[i], true
	}
	return Operation{}, false
}

// Transaction returns the transaction with the given id.
func (d *Document) Transaction(id string) (Transaction, bool) {
	if i := d.transactionIndex(id); i >= 0 {
		return d.Transactions[i], true
	}
	return Transaction{}, false
}

func (d *Document) appendNotifications(notes []Notification) {
	if len(notes) == 0 {
		return
	}
	d.Notifications = append(d.Notifications, notes...)
	if over := len(d.Notifications) - maxNotifications; over > 0 {
		d.Notifications = slices.Clone(d.Notifications[over:])
	}
}

// RepairIDs assigns fresh ids to records whose id is empty or duplicated
// within its collection, and normalizes nil collections to empty ones.
// It returns how many records were repaired.
func (d *Document) RepairIDs() int {
	repaired := 0
	fix := func(prefix string, ids func(i int) *string, n int) {
		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			id := ids(i)
			if *id == "" || seen[*id] {
				*id = ensureID(prefix, "")
				repaired++
			}
			seen[*id] = true
		}
	}
	fix("cust", func(i int) *string { return &d.Customers[i].ID }, len(d.Customers))
	fix("part", func(i int) *string { return &d.Parts[i].ID }, len(d.Parts))
	fix("op", func(i int) *string { return &d.Operations[i].ID }, len(d.Operations))
	fix("tx", func(i int) *string { return &d.Transactions[i].ID }, len(d.Transactions))

	if d.Customers == nil {
		d.Customers = []Customer{}
	}
	if d.Parts == nil {
		d.Parts = []Part{}
	}
	if d.Operations == nil {
		d.Operations = []Operation{}
	}
	if d.Transactions == nil {
		d.Transactions = []Transaction{}
	}
	if d.Notifications == nil {
		d.Notifications = []Notification{}
	}
	if d.StockAdjustments == nil {
		d.StockAdjustments = []StockAdjustment{}
	}
	if d.DayClosures == nil {
		d.DayClosures = []DayClosure{}
	}
	return repaired
}
