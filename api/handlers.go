/*
handlers.go - HTTP API handlers for the shop ledger

PURPOSE:
  Exposes the ledger engine to the desktop shell's web UI over a loopback
  REST API. Handles HTTP request/response and JSON, and delegates every
  state change to ledger.Engine.

ENDPOINTS:
  Document:
    GET    /api/document                   Whole document (passwords hidden)
    GET    /api/migration                  One-time upgrade summary

  Parts:
    GET    /api/parts                      List parts
    POST   /api/parts                      Add part
    PUT    /api/parts/{id}                 Update name/code/price/threshold
    DELETE /api/parts/{id}                 Delete part
    POST   /api/parts/{id}/restock         Direct stock add

  Customers:
    GET    /api/customers                  List customers
    POST   /api/customers                  Add customer
    PUT    /api/customers/{id}             Update name/phone/address
    DELETE /api/customers/{id}             Delete customer
    GET    /api/customers/{id}/history     Operations + transactions, newest first

  Operations:
    GET    /api/operations                 List (?date=, ?customerId=)
    POST   /api/operations                 Submit sale (resolve-or-create customer)
    PUT    /api/operations/{id}            Edit sale
    DELETE /api/operations/{id}            Delete sale

  Transactions:
    GET    /api/transactions               List (?customerId=)
    POST   /api/transactions               Record payment or debt
    DELETE /api/transactions/{id}          Delete

  Notifications, reports, session, backup, settings, audit, scenarios:
  see server.go.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors (with the offending field)
  - 403: Wrong password
  - 404: Unknown id (the engine itself treats this as a no-op)
  - 409: No open session to close
  - 500: Internal errors
  - 501: Backup history on a backend that keeps none

SECURITY NOTE:
  No authentication here. Login and license gating happen in the desktop
  shell before it talks to this API, which only listens on loopback.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/store"
)

// maxBodyBytes bounds request bodies; an import of a large shop is a few MB.
const maxBodyBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Store    *store.Store
	Location *time.Location

	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over an engine and the store it commits to.
func NewHandler(engine *ledger.Engine, st *store.Store, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{Engine: engine, Store: st, Location: loc, now: time.Now}
}

// localNow is the handler's clock in the shop's time zone. Bare dates in
// request bodies are read against it.
func (h *Handler) localNow() time.Time { return h.now().In(h.Location) }

// =============================================================================
// DOCUMENT
// =============================================================================

// GetDocument returns the whole document for the UI to render.
// GET /api/document
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc := h.Engine.Snapshot()
	doc.Settings.LoginPassword = ""
	doc.Settings.AdminPassword = ""
	writeJSON(w, http.StatusOK, doc)
}

// GetMigration returns the summary of a startup migration, once.
// GET /api/migration
func (h *Handler) GetMigration(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Store.TakeMigrationReport()
	if !ok {
		writeJSON(w, http.StatusOK, MigrationResponse{})
		return
	}
	writeJSON(w, http.StatusOK, MigrationResponse{Migrated: true, Report: &report, Summary: report.Summary()})
}

// =============================================================================
// PART HANDLERS
// =============================================================================

// ListParts returns all parts.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Parts)
}

// CreatePart validates and adds a part.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	part, err := ledger.ValidatePart(rec, h.localNow())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	added, err := h.Engine.AddPart(r.Context(), part)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch ledger.PartPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	found, err := h.Engine.UpdatePart(r.Context(), id, patch)
	h.respondMutation(w, found, err, "part", func(doc *ledger.Document) any {
		p, _ := doc.Part(id)
		return p
	})
}

func (h *Handler) DeletePart(w http.ResponseWriter, r *http.Request) {
	found, err := h.Engine.DeletePart(r.Context(), chi.URLParam(r, "id"))
	h.respondMutation(w, found, err, "part", nil)
}

// RestockPart adds stock outside of a sale.
func (h *Handler) RestockPart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RestockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	found, err := h.Engine.RestockPart(r.Context(), id, req.Quantity, req.Note)
	h.respondMutation(w, found, err, "part", func(doc *ledger.Document) any {
		p, _ := doc.Part(id)
		return p
	})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Customers)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	c, err := ledger.ValidateCustomer(rec, h.localNow())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	added, err := h.Engine.AddCustomer(r.Context(), c)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch ledger.CustomerPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	found, err := h.Engine.UpdateCustomer(r.Context(), id, patch)
	h.respondMutation(w, found, err, "customer", func(doc *ledger.Document) any {
		c, _ := doc.Customer(id)
		return c
	})
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	found, err := h.Engine.DeleteCustomer(r.Context(), chi.URLParam(r, "id"))
	h.respondMutation(w, found, err, "customer", nil)
}

// CustomerHistory returns the customer's statement, newest first. History
// outlives the customer record, so a deleted customer with history still
// answers.
// GET /api/customers/{id}/history
func (h *Handler) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc := h.Engine.Snapshot()
	entries := ledger.CustomerHistory(doc, id)
	if _, ok := doc.Customer(id); !ok && len(entries) == 0 {
		writeError(w, http.StatusNotFound, "Customer not found", nil)
		return
	}
	if entries == nil {
		entries = []ledger.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// ListOperations returns operations, optionally for one day and/or one
// customer.
// GET /api/operations?date=2024-03-10&customerId=cust_x
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	customerID := r.URL.Query().Get("customerId")
	out := []ledger.Operation{}
	for _, op := range h.Engine.Snapshot().Operations {
		if date != "" && op.Timestamp.In(h.Location).Format(time.DateOnly) != date {
			continue
		}
		if customerID != "" && op.CustomerID != customerID {
			continue
		}
		out = append(out, op)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateOperation submits a sale. The customer may be named by id, or by
// name/phone for resolve-or-create.
// POST /api/operations
func (h *Handler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.SubmitOperation(r.Context(), rec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UpdateOperation replaces a sale. Fields the body omits that identify the
// sale (customer, timestamp) are kept from the stored one.
// PUT /api/operations/{id}
func (h *Handler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if old, ok := h.Engine.Snapshot().Operation(id); ok {
		if !rec.Has("customerId") {
			rec["customerId"] = old.CustomerID
		}
		if !rec.Has("timestamp") {
			rec["timestamp"] = old.Timestamp.Format(time.RFC3339Nano)
		}
	}
	draft, err := ledger.ValidateOperation(rec, h.localNow())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	found, err := h.Engine.UpdateOperation(r.Context(), id, draft)
	h.respondMutation(w, found, err, "operation", func(doc *ledger.Document) any {
		op, _ := doc.Operation(id)
		return op
	})
}

func (h *Handler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	found, err := h.Engine.DeleteOperation(r.Context(), chi.URLParam(r, "id"))
	h.respondMutation(w, found, err, "operation", nil)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	out := []ledger.Transaction{}
	for _, tx := range h.Engine.Snapshot().Transactions {
		if customerID == "" || tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateTransaction records a payment or debt against one customer.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	draft, err := ledger.ValidateTransaction(rec, h.localNow())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	tx, recorded, err := h.Engine.RecordDirectTransaction(r.Context(), draft.CustomerID, draft.Amount, draft.Type, draft.Note)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !recorded {
		writeError(w, http.StatusNotFound, "Customer not found", nil)
		return
	}
	c, _ := h.Engine.Snapshot().Customer(tx.CustomerID)
	writeJSON(w, http.StatusCreated, TransactionResponse{Transaction: tx, Balance: c.Balance})
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	found, err := h.Engine.DeleteTransaction(r.Context(), chi.URLParam(r, "id"))
	h.respondMutation(w, found, err, "transaction", nil)
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Notifications)
}

func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Engine.MarkNotificationsRead(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Engine.ClearNotifications(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORTS & SESSION
// =============================================================================

// DailyReport summarizes one day (default today).
// GET /api/reports/daily?date=2024-03-10
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.Engine.Today()
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.DailySummary(h.Engine.Snapshot(), date, h.Location))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Session())
}

// CloseDay runs the end-of-day reconciliation.
// POST /api/session/close
func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	var req CloseDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	closure, err := h.Engine.CloseDay(r.Context(), req.Counted, req.AdminPassword, req.Note)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closure)
}

// =============================================================================
// BACKUP HANDLERS
// =============================================================================

// ExportBackup downloads the document without its license.
// GET /api/backup/export
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	var blob []byte
	err := h.Engine.Exclusive(func() error {
		var err error
		blob, err = h.Store.Export()
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export", err)
		return
	}
	name := fmt.Sprintf("shop-ledger-%s.backup", h.Engine.Today())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// ImportBackup replaces the document with an exported file.
// POST /api/backup/import
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	var report *ledger.MigrationReport
	err = h.Engine.Exclusive(func() error {
		var err error
		report, err = h.Store.Import(r.Context(), blob)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) || errors.Is(err, ledger.ErrUnsupportedVersion) {
			writeError(w, http.StatusBadRequest, "Not a valid backup file", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to import", err)
		return
	}
	log.Printf("[API] backup imported")
	writeJSON(w, http.StatusOK, ImportResponse{Imported: true, Migration: report})
}

// RestoreBackup promotes the backup slot to the live document.
// POST /api/backup/restore
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	err := h.Engine.Exclusive(func() error {
		_, err := h.Store.RestoreFromBackup(r.Context())
		return err
	})
	if errors.Is(err, ledger.ErrNoBackup) {
		writeError(w, http.StatusNotFound, "No backup available", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restore", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
}

// BackupHistory lists earlier backups, newest first.
// GET /api/backup/history
func (h *Handler) BackupHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Store.BackupHistory(r.Context(), 0)
	if errors.Is(err, store.ErrNoHistory) {
		writeError(w, http.StatusNotImplemented, "Backup history not kept by this storage", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read backup history", err)
		return
	}
	if history == nil {
		history = []store.ArchivedBlob{}
	}
	writeJSON(w, http.StatusOK, history)
}

// RestoreArchivedBackup promotes one earlier backup to the live document.
// POST /api/backup/history/{id}/restore
func (h *Handler) RestoreArchivedBackup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid backup id", err)
		return
	}
	var found bool
	err = h.Engine.Exclusive(func() error {
		var err error
		found, err = h.Store.RestoreArchived(r.Context(), id)
		return err
	})
	if errors.Is(err, store.ErrNoHistory) {
		writeError(w, http.StatusNotImplemented, "Backup history not kept by this storage", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restore", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Backup not found", nil)
		return
	}
	log.Printf("[API] archived backup %d restored", id)
	writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
}

// =============================================================================
// SETTINGS & AUDIT
// =============================================================================

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch ledger.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if _, err := h.Engine.UpdateSettings(r.Context(), patch); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Engine.ChangePassword(r.Context(), req.Kind, req.Current, req.Next); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audit replays balances and stock and lists mismatches.
// GET /api/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	out := ledger.Audit(h.Engine.Snapshot())
	if out == nil {
		out = []ledger.Discrepancy{}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

// respondMutation maps an engine (found, err) pair to a response. view, if
// set, renders the updated entity from a fresh snapshot.
func (h *Handler) respondMutation(w http.ResponseWriter, found bool, err error, entity string, view func(*ledger.Document) any) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, strings.ToUpper(entity[:1])+entity[1:]+" not found", nil)
		return
	}
	if view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, view(h.Engine.Snapshot()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

// decodeRecord reads a loose entity body, keeping numbers exact.
func decodeRecord(w http.ResponseWriter, r *http.Request) (ledger.Record, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var rec ledger.Record
	if err := dec.Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return nil, false
	}
	if rec == nil {
		rec = ledger.Record{}
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps ledger errors to statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: verr.Error(), Field: verr.Field})
	case errors.Is(err, ledger.ErrMissingCustomer):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Customer required", Details: err.Error(), Field: "customerName"})
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Wrong password", nil)
	case errors.Is(err, ledger.ErrSessionNotOpen):
		writeError(w, http.StatusConflict, "No open session", err)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "Request cancelled", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
