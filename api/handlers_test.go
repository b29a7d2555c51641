/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Entity creation through loose JSON bodies
- Status mapping of validation, password, session and unknown-id errors
- Backup export and import round trip, archived backup restore
- Reports and audit
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/store"
	"github.com/warp/shop-ledger/store/memory"
	"github.com/warp/shop-ledger/store/sqlite"
)

var testNow = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerOver(t, memory.New())
}

func newTestServerOver(t *testing.T, backend store.Backend) *testServer {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.New(backend,
		store.WithClock(clock),
		store.WithDefaults(ledger.Defaults{LoginPassword: "1234", AdminPassword: "admin"}),
	)
	st.Load(context.Background())
	engine := ledger.NewEngine(st, ledger.WithClock(clock), ledger.WithLocation(time.UTC))

	h := NewHandler(engine, st, time.UTC)
	h.now = clock
	return &testServer{
		h:      h,
		router: NewRouter(h, RouterOptions{StaticDir: t.TempDir()}),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// addPart creates a part over the API and returns its id.
func (s *testServer) addPart(t *testing.T, body string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/parts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ledger.Part](t, rec).ID
}

// =============================================================================
// PARTS & CUSTOMERS
// =============================================================================

func TestCreatePart_AcceptsLooseNumbers(t *testing.T) {
	// GIVEN: A part body with Arabic-Indic digits and a string price
	// WHEN: It is posted
	// THEN: The part is created with the coerced values

	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/parts", `{"name": "فلتر", "quantity": "١٠", "price": "50", "threshold": 3}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[ledger.Part](t, rec)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "فلتر", p.Name)
	assert.Equal(t, 10, p.Quantity)
	assert.Equal(t, "50", p.Price.String())

	parts := decodeBody[[]ledger.Part](t, s.do(t, http.MethodGet, "/api/parts", ""))
	assert.Len(t, parts, 1)
}

func TestCreatePart_ValidationError(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/parts", `{"name": "   ", "quantity": 4}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "name", resp.Field)
}

func TestCreatePart_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/parts", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestockPart(t *testing.T) {
	s := newTestServer(t)
	id := s.addPart(t, `{"name": "بواجي", "quantity": 2, "threshold": 1}`)

	rec := s.do(t, http.MethodPost, "/api/parts/"+id+"/restock", `{"quantity": 5, "note": "delivery"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 7, decodeBody[ledger.Part](t, rec).Quantity)
}

func TestUnknownIDs_Return404(t *testing.T) {
	// GIVEN: An empty shop
	// WHEN: Any entity is addressed by an id that does not exist
	// THEN: 404, and nothing is committed

	s := newTestServer(t)
	before := s.h.Engine.Snapshot().Metadata.LastModified

	cases := []struct{ method, path, body string }{
		{http.MethodPut, "/api/parts/nope", `{"name": "x"}`},
		{http.MethodDelete, "/api/parts/nope", ""},
		{http.MethodPost, "/api/parts/nope/restock", `{"quantity": 1}`},
		{http.MethodPut, "/api/customers/nope", `{"name": "x"}`},
		{http.MethodDelete, "/api/customers/nope", ""},
		{http.MethodGet, "/api/customers/nope/history", ""},
		{http.MethodDelete, "/api/operations/nope", ""},
		{http.MethodDelete, "/api/transactions/nope", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, before, s.h.Engine.Snapshot().Metadata.LastModified)
}

func TestCustomerLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/customers", `{"name": "سامر", "phone": "0791234567", "balance": 25}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[ledger.Customer](t, rec)
	assert.Equal(t, "25", c.Balance.String(), "starting balance becomes the opening balance")

	rec = s.do(t, http.MethodPut, "/api/customers/"+c.ID, `{"address": "Amman"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Amman", decodeBody[ledger.Customer](t, rec).Address)

	rec = s.do(t, http.MethodDelete, "/api/customers/"+c.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, decodeBody[[]ledger.Customer](t, s.do(t, http.MethodGet, "/api/customers", "")))
}

// =============================================================================
// OPERATIONS & TRANSACTIONS
// =============================================================================

func TestCreateOperation_CreatesCustomerByName(t *testing.T) {
	// GIVEN: A part and no customers
	// WHEN: A partly paid sale names a new customer
	// THEN: 201, the customer is created and owes the unpaid remainder

	s := newTestServer(t)
	partID := s.addPart(t, `{"name": "Filter", "quantity": 10, "price": 50, "threshold": 3}`)

	body := `{"customerName": "Ahmad", "items": [{"partId": "` + partID + `", "quantity": 2, "price": 50}], "paidAmount": 60}`
	rec := s.do(t, http.MethodPost, "/api/operations", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[ledger.SubmitResult](t, rec)
	assert.Equal(t, ledger.MatchCreated, res.Match)
	assert.Equal(t, "Ahmad", res.Customer.Name)
	assert.Equal(t, "100", res.Operation.TotalPrice.String())
	assert.Equal(t, ledger.StatusPartial, res.Operation.PaymentStatus)

	c, ok := s.h.Engine.Snapshot().Customer(res.Customer.ID)
	require.True(t, ok)
	assert.Equal(t, "40", c.Balance.String())

	ops := decodeBody[[]ledger.Operation](t, s.do(t, http.MethodGet, "/api/operations?date=2025-03-10", ""))
	assert.Len(t, ops, 1)
	ops = decodeBody[[]ledger.Operation](t, s.do(t, http.MethodGet, "/api/operations?date=2025-03-09", ""))
	assert.Empty(t, ops)

	history := decodeBody[[]ledger.HistoryEntry](t, s.do(t, http.MethodGet, "/api/customers/"+c.ID+"/history", ""))
	assert.Len(t, history, 1)
}

func TestCreateOperation_MissingCustomer(t *testing.T) {
	s := newTestServer(t)
	partID := s.addPart(t, `{"name": "Filter", "quantity": 10, "price": 50}`)

	rec := s.do(t, http.MethodPost, "/api/operations", `{"items": [{"partId": "`+partID+`", "quantity": 1, "price": 50}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "customerName", decodeBody[ErrorResponse](t, rec).Field)
	assert.Empty(t, s.h.Engine.Snapshot().Operations)
}

func TestUpdateOperation_KeepsCustomer(t *testing.T) {
	s := newTestServer(t)
	partID := s.addPart(t, `{"name": "Filter", "quantity": 10, "price": 50}`)
	rec := s.do(t, http.MethodPost, "/api/operations",
		`{"customerName": "Ahmad", "items": [{"partId": "`+partID+`", "quantity": 1, "price": 50}], "paymentStatus": "unpaid"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[ledger.SubmitResult](t, rec)

	// WHEN: The sale is edited without naming the customer
	rec = s.do(t, http.MethodPut, "/api/operations/"+res.Operation.ID,
		`{"items": [{"partId": "`+partID+`", "quantity": 3, "price": 50}], "paymentStatus": "unpaid"}`)

	// THEN: The customer is kept and owes the new total
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	op := decodeBody[ledger.Operation](t, rec)
	assert.Equal(t, res.Customer.ID, op.CustomerID)
	c, _ := s.h.Engine.Snapshot().Customer(res.Customer.ID)
	assert.Equal(t, "150", c.Balance.String())
	p, _ := s.h.Engine.Snapshot().Part(partID)
	assert.Equal(t, 7, p.Quantity)
}

func TestCreateTransaction(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/customers", `{"name": "Sami", "balance": 100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	custID := decodeBody[ledger.Customer](t, rec).ID

	t.Run("payment lowers the balance", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/transactions", `{"customerId": "`+custID+`", "amount": "30", "type": "payment"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeBody[TransactionResponse](t, rec)
		assert.Equal(t, "70", resp.Balance.String())
		assert.Equal(t, ledger.TxPayment, resp.Transaction.Type)
	})

	t.Run("missing customer is a validation error", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/transactions", `{"amount": 30, "type": "payment"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "customerId", decodeBody[ErrorResponse](t, rec).Field)
	})

	t.Run("unknown customer is not recorded", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/transactions", `{"customerId": "ghost", "amount": 30, "type": "debt"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad amount", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/transactions", `{"customerId": "`+custID+`", "amount": -5, "type": "debt"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "amount", decodeBody[ErrorResponse](t, rec).Field)
	})

	txs := decodeBody[[]ledger.Transaction](t, s.do(t, http.MethodGet, "/api/transactions?customerId="+custID, ""))
	assert.Len(t, txs, 1)
}

// =============================================================================
// SESSION, REPORTS, NOTIFICATIONS
// =============================================================================

func TestCloseDay_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: No session yet
	rec := s.do(t, http.MethodPost, "/api/session/close", `{"counted": 0, "adminPassword": "admin"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// GIVEN: A paid sale opens the day
	partID := s.addPart(t, `{"name": "Filter", "quantity": 10, "price": 50}`)
	rec = s.do(t, http.MethodPost, "/api/operations",
		`{"customerName": "Ahmad", "items": [{"partId": "`+partID+`", "quantity": 2, "price": 50}], "paymentStatus": "paid"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	st := decodeBody[ledger.SessionStatus](t, s.do(t, http.MethodGet, "/api/session", ""))
	assert.True(t, st.Open)
	assert.Equal(t, "2025-03-10", st.Date)
	assert.Equal(t, "100", st.Expected.String())

	// WHEN: The wrong admin password is given
	rec = s.do(t, http.MethodPost, "/api/session/close", `{"counted": 100, "adminPassword": "guess"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, s.h.Engine.Session().Open, "session stays open")

	// WHEN: The right one is given
	rec = s.do(t, http.MethodPost, "/api/session/close", `{"counted": "95", "adminPassword": "admin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closure := decodeBody[ledger.DayClosure](t, rec)
	assert.Equal(t, "-5", closure.Difference.String())
	assert.False(t, s.h.Engine.Session().Open)
}

func TestDailyReport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/reports/daily?date=10-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reports/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[ledger.DailyReport](t, rec)
	assert.Equal(t, "2025-03-10", report.Date, "defaults to today")
	assert.Zero(t, report.Operations)
}

func TestNotifications_ReadAndClear(t *testing.T) {
	s := newTestServer(t)
	partID := s.addPart(t, `{"name": "Filter", "quantity": 2, "price": 50, "threshold": 1}`)
	rec := s.do(t, http.MethodPost, "/api/operations",
		`{"customerName": "Ahmad", "items": [{"partId": "`+partID+`", "quantity": 2, "price": 50}], "paymentStatus": "paid"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	notes := decodeBody[[]ledger.Notification](t, s.do(t, http.MethodGet, "/api/notifications", ""))
	require.NotEmpty(t, notes)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/notifications/read", "").Code)
	for _, n := range s.h.Engine.Snapshot().Notifications {
		assert.True(t, n.Read)
	}

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/notifications", "").Code)
	assert.Empty(t, decodeBody[[]ledger.Notification](t, s.do(t, http.MethodGet, "/api/notifications", "")))
}

// =============================================================================
// DOCUMENT, BACKUP, SETTINGS, AUDIT
// =============================================================================

func TestGetDocument_HidesPasswords(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/document", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.NotEmpty(t, s.h.Engine.Snapshot().Settings.AdminPassword, "only the response is redacted")
}

func TestBackup_ExportThenImport(t *testing.T) {
	// GIVEN: A shop with one part, exported
	// WHEN: The part is deleted and the export imported back
	// THEN: The part is back and the pre-import document is in the backup slot

	s := newTestServer(t)
	partID := s.addPart(t, `{"name": "Filter", "quantity": 3}`)

	rec := s.do(t, http.MethodGet, "/api/backup/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shop-ledger-2025-03-10.backup")
	blob := rec.Body.String()

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/parts/"+partID, "").Code)
	require.Empty(t, s.h.Engine.Snapshot().Parts)

	rec = s.do(t, http.MethodPost, "/api/backup/import", blob)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ImportResponse](t, rec)
	assert.True(t, resp.Imported)
	assert.Nil(t, resp.Migration)

	_, ok := s.h.Engine.Snapshot().Part(partID)
	assert.True(t, ok)

	// The backup slot holds the document from before the import.
	rec = s.do(t, http.MethodPost, "/api/backup/restore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, s.h.Engine.Snapshot().Parts)
}

func TestBackup_ImportRejectsGarbage(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/backup/import", "not a backup")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackup_RestoreWithoutBackup(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/backup/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupHistory_NotKeptInMemory(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotImplemented, s.do(t, http.MethodGet, "/api/backup/history", "").Code)
	assert.Equal(t, http.StatusNotImplemented, s.do(t, http.MethodPost, "/api/backup/history/1/restore", "").Code)
}

func TestBackupHistory_RestoreOlderBackup(t *testing.T) {
	// GIVEN: A SQLite-backed shop imported over twice
	// WHEN: The oldest archived backup is restored
	// THEN: The shop is back to its first state

	backend, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	s := newTestServerOver(t, backend)

	first := s.addPart(t, `{"name": "Filter", "quantity": 3}`)
	blob := s.do(t, http.MethodGet, "/api/backup/export", "").Body.String()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/backup/import", blob).Code)
	s.addPart(t, `{"name": "Belt", "quantity": 1}`)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/backup/import", blob).Code)

	rec := s.do(t, http.MethodGet, "/api/backup/history", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decodeBody[[]store.ArchivedBlob](t, rec)
	require.Len(t, history, 2)
	assert.Greater(t, history[0].ID, history[1].ID, "newest first")

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/backup/history/%d/restore", history[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parts := s.h.Engine.Snapshot().Parts
	require.Len(t, parts, 2, "the pre-import document had both parts")

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/backup/history/%d/restore", history[1].ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parts = s.h.Engine.Snapshot().Parts
	require.Len(t, parts, 1)
	assert.Equal(t, first, parts[0].ID)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/backup/history/9999/restore", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/backup/history/abc/restore", "").Code)
}

func TestSettings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/settings", `{"shopName": "Ali Parts"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "Ali Parts", s.h.Engine.Snapshot().Settings.ShopName)

	rec = s.do(t, http.MethodPost, "/api/settings/password", `{"kind": "admin", "current": "wrong", "next": "5678"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/settings/password", `{"kind": "admin", "current": "admin", "next": "5678"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.True(t, ledger.VerifyPassword(s.h.Engine.Snapshot().Settings.AdminPassword, "5678"))
}

func TestAudit_EmptyList(t *testing.T) {
	s := newTestServer(t)
	s.addPart(t, `{"name": "Filter", "quantity": 3}`)

	rec := s.do(t, http.MethodGet, "/api/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetMigration_NothingMigrated(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/migration", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[MigrationResponse](t, rec).Migrated)
}
