/*
scenarios.go - Demo data loaders

PURPOSE:
  Loads predefined shops into an empty document so the UI can be shown or
  tried out without typing a day of sales first. Every scenario is built
  through the ledger engine, the same way the UI would build it, so
  balances, stock and notifications are all consistent with replay.

AVAILABLE SCENARIOS:
  empty-shop:
    - Nothing but default settings

  busy-day:
    - Four parts, two regular customers
    - Paid, partial and unpaid sales, one walk-in customer created by name
    - A payment and a restock

  customer-credit:
    - A customer who paid in advance (negative balance)
    - A sale settled from that credit

  low-stock:
    - Parts at or under their alert threshold
    - A sale that takes one part below zero

USAGE:
  POST /api/scenarios/load {"scenario_id": "busy-day"}

  Loading resets the document first. The previous document is kept in the
  backup slot and can be brought back with POST /api/backup/restore.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - store/store.go: Reset
*/
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-shop",
		Name:        "Empty Shop",
		Description: "Fresh document with default settings",
		Category:    "basic",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "A day of paid, partial and unpaid sales with a payment and a restock",
		Category:    "sales",
	},
	{
		ID:          "customer-credit",
		Name:        "Customer Credit",
		Description: "A prepaid customer whose sale is settled from credit",
		Category:    "ledger",
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Parts at their alert threshold and one oversold part",
		Category:    "inventory",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the document and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Engine.Exclusive(func() error { return h.Store.Reset(ctx) }); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset document", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Engine); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	log.Printf("[API] scenario %s loaded", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var scenarioLoaders = map[string]func(context.Context, *ledger.Engine) error{
	"empty-shop":      func(context.Context, *ledger.Engine) error { return nil },
	"busy-day":        loadBusyDayScenario,
	"customer-credit": loadCustomerCreditScenario,
	"low-stock":       loadLowStockScenario,
}

// seeder threads the first error through a sequence of engine calls.
type seeder struct {
	ctx context.Context
	e   *ledger.Engine
	err error
}

func (s *seeder) part(name, code string, qty int, price int64, threshold int) string {
	if s.err != nil {
		return ""
	}
	p, err := ledger.ValidatePart(ledger.Record{
		"name": name, "code": code, "quantity": qty, "price": price, "threshold": threshold,
	}, s.e.Now())
	if err == nil {
		p, err = s.e.AddPart(s.ctx, p)
	}
	s.err = err
	return p.ID
}

func (s *seeder) customer(name, phone string, opening int64) string {
	if s.err != nil {
		return ""
	}
	c, err := ledger.ValidateCustomer(ledger.Record{
		"name": name, "phone": phone, "openingBalance": opening,
	}, s.e.Now())
	if err == nil {
		c, err = s.e.AddCustomer(s.ctx, c)
	}
	s.err = err
	return c.ID
}

// sale submits one sale. who is a customer id or, for a walk-in, a name.
func (s *seeder) sale(who string, rec ledger.Record) {
	if s.err != nil {
		return
	}
	if _, ok := s.e.Snapshot().Customer(who); ok {
		rec["customerId"] = who
	} else {
		rec["customerName"] = who
	}
	_, s.err = s.e.SubmitOperation(s.ctx, rec)
}

func (s *seeder) payment(customerID string, amount int64, typ ledger.TransactionType, note string) {
	if s.err != nil {
		return
	}
	_, ok, err := s.e.RecordDirectTransaction(s.ctx, customerID, decimal.NewFromInt(amount), typ, note)
	if err == nil && !ok {
		err = fmt.Errorf("customer %s not found", customerID)
	}
	s.err = err
}

func items(lines ...ledger.Record) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = map[string]any(l)
	}
	return out
}

func line(partID string, qty int, price int64) ledger.Record {
	return ledger.Record{"partId": partID, "quantity": qty, "price": price}
}

func loadBusyDayScenario(ctx context.Context, e *ledger.Engine) error {
	s := &seeder{ctx: ctx, e: e}

	oil := s.part("فلتر زيت", "OF-110", 20, 15, 5)
	plugs := s.part("بواجي", "SP-4", 40, 6, 8)
	pads := s.part("تيل فرامل", "BP-22", 10, 45, 3)
	belt := s.part("سير مروحة", "FB-9", 6, 25, 2)

	ahmad := s.customer("أحمد الخطيب", "0791234567", 0)
	sami := s.customer("سامي حداد", "0785550101", 30)

	// Paid in full
	s.sale(ahmad, ledger.Record{
		"items":         items(line(oil, 1, 15), line(plugs, 4, 6)),
		"paymentStatus": "paid",
	})
	// Partial
	s.sale(sami, ledger.Record{
		"items":      items(line(pads, 1, 45), line(belt, 1, 25)),
		"paidAmount": 40,
	})
	// Unpaid, walk-in customer created by name
	s.sale("محمود", ledger.Record{
		"items":         items(line(oil, 2, 15)),
		"paymentStatus": "unpaid",
	})

	s.payment(sami, 30, ledger.TxPayment, "cash")
	if s.err == nil {
		_, s.err = e.RestockPart(ctx, belt, 4, "supplier delivery")
	}
	return s.err
}

func loadCustomerCreditScenario(ctx context.Context, e *ledger.Engine) error {
	s := &seeder{ctx: ctx, e: e}

	battery := s.part("بطارية 70 أمبير", "BT-70", 5, 120, 1)
	huda := s.customer("هدى", "0777000111", 0)

	// Paid in advance
	s.payment(huda, 150, ledger.TxPayment, "advance")
	s.sale(huda, ledger.Record{
		"items":         items(line(battery, 1, 120)),
		"paymentStatus": "unpaid",
		"applyCredit":   true,
	})
	return s.err
}

func loadLowStockScenario(ctx context.Context, e *ledger.Engine) error {
	s := &seeder{ctx: ctx, e: e}

	s.part("فلتر هواء", "AF-3", 3, 12, 3)
	s.part("زيت محرك 4 لتر", "EO-4", 2, 30, 5)
	bulbs := s.part("لمبة أمامية", "HL-1", 1, 8, 2)
	walkIn := s.customer("زبون نقدي", "", 0)

	s.sale(walkIn, ledger.Record{
		"items":         items(line(bulbs, 3, 8)),
		"paymentStatus": "paid",
	})
	return s.err
}
