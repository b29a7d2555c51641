package ledger_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
)

// legacyDoc decodes a legacy document the way the store probes one.
func legacyDoc(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	return m
}

const legacyShop = `{
	"metadata": {"createdAt": "2023-06-01T08:00:00Z"},
	"customers": [
		{"id": "c1", "name": "Ahmad", "balance": 150},
		{"id": "c2", "name": "Sami", "balance": "-20"},
		{"id": "c3", "name": "   "},
		{"name": "Huda"}
	],
	"parts": [
		{"id": "p1", "name": "Filter", "quantity": 4, "price": 25},
		{"id": "p2", "quantity": 9}
	],
	"operations": [
		{"id": "o1", "customerId": "c1", "partId": "p1", "partName": "Filter",
		 "quantity": 3, "totalPrice": 100, "paidAmount": 40, "timestamp": "2024-01-05T10:00:00Z"}
	],
	"transactions": [
		{"id": "t1", "customerId": "c1", "amount": 10, "type": "payment"},
		{"id": "t2", "customerId": "c1", "amount": 5, "type": "sale"}
	],
	"notifications": [{"id": "n1", "text": "old note", "type": "weird", "read": true}],
	"settings": {"shopName": "Ali Parts", "theme": "dark", "adminPassword": "9999"},
	"activeSessionDate": "2024-01-05",
	"license": {"key": "LIC-1", "owner": "Ali"}
}`

func TestMigrate_DropsInvalidAndKeepsValid(t *testing.T) {
	// GIVEN: A legacy shop with 3 valid and 1 invalid customers, a nameless
	//        part and a "sale" transaction from the old ledger model
	// WHEN: It is migrated
	// THEN: Exactly the valid records survive and the drops are counted

	doc, report := ledger.Migrate(legacyDoc(t, legacyShop), march10, ledger.Defaults{LoginPassword: "1234", AdminPassword: "admin"})

	assert.Equal(t, ledger.CurrentVersion, doc.Version)
	assert.Equal(t, 0, report.FromVersion)

	assert.Len(t, doc.Customers, 3)
	assert.Equal(t, ledger.EntityCounts{Kept: 3, Repaired: 1, Dropped: 1}, report.Customers)
	assert.Equal(t, ledger.EntityCounts{Kept: 1, Dropped: 1}, report.Parts)
	assert.Equal(t, ledger.EntityCounts{Kept: 1}, report.Operations)
	assert.Equal(t, ledger.EntityCounts{Kept: 1, Dropped: 1}, report.Transactions)
	assert.Equal(t, 1, report.Repaired())
	assert.Equal(t, 3, report.Dropped())

	for _, c := range doc.Customers {
		assert.NotEmpty(t, c.ID)
	}
	assert.True(t, doc.Metadata.CreatedAt.Equal(time.Date(2023, time.June, 1, 8, 0, 0, 0, time.UTC)))
}

func TestMigrate_OffsetlessTimestampsUseShopZone(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*3600)
	raw := `{
		"metadata": {"createdAt": "2023-06-01"},
		"customers": [{"id": "c1", "name": "Ahmad"}],
		"operations": [
			{"id": "o1", "customerId": "c1", "partName": "Filter",
			 "quantity": 1, "totalPrice": 25, "paidAmount": 25, "timestamp": "2024-01-05T21:00:00"}
		]
	}`

	doc, _ := ledger.Migrate(legacyDoc(t, raw), march10.In(west), ledger.Defaults{})

	require.Len(t, doc.Operations, 1)
	assert.Equal(t, "2024-01-05 21:00", doc.Operations[0].Timestamp.In(west).Format("2006-01-02 15:04"))
	assert.Equal(t, "2023-06-01", doc.Metadata.CreatedAt.In(west).Format("2006-01-02"))
}

func TestMigrate_InlineOperationBecomesItems(t *testing.T) {
	doc, report := ledger.Migrate(legacyDoc(t, legacyShop), march10, ledger.Defaults{})
	require.Len(t, doc.Operations, 1)
	op := doc.Operations[0]

	assert.Equal(t, 1, report.ConvertedOperations)
	require.Len(t, op.Items, 1)
	assert.Equal(t, "p1", op.Items[0].PartID)
	assert.Equal(t, 3, op.Items[0].Quantity)
	assert.Equal(t, "33.33", op.Items[0].Price.String(), "unit price is total / quantity")
	assertDecimal(t, 100, op.TotalPrice, "legacy total is kept")
	assertDecimal(t, 40, op.PaidAmount)
	assert.Equal(t, ledger.StatusPartial, op.PaymentStatus)
	assert.Equal(t, "Ahmad", op.CustomerName)
}

func TestMigrate_ReplayReproducesLegacyTotals(t *testing.T) {
	// GIVEN: Legacy balances and quantities that are running totals
	// WHEN: Migrated
	// THEN: Opening balances and opening stock make replay land on them

	doc, report := ledger.Migrate(legacyDoc(t, legacyShop), march10, ledger.Defaults{})

	c1, ok := doc.Customer("c1")
	require.True(t, ok)
	assertDecimal(t, 150, c1.Balance)
	assertDecimal(t, 100, c1.OpeningBalance, "150 - (60 owed on o1 - 10 paid on t1)")

	c2, _ := doc.Customer("c2")
	assertDecimal(t, -20, c2.Balance)

	p1, _ := doc.Part("p1")
	assert.Equal(t, 4, p1.Quantity)
	require.Len(t, doc.StockAdjustments, 1)
	assert.Equal(t, 7, doc.StockAdjustments[0].Delta)

	assert.Equal(t, 2, report.OpeningBalances)
	assert.Equal(t, 1, report.OpeningStock)
	assert.Empty(t, ledger.Audit(doc))
}

func TestMigrate_CarriesSettingsSessionAndLicense(t *testing.T) {
	doc, report := ledger.Migrate(legacyDoc(t, legacyShop), march10, ledger.Defaults{LoginPassword: "1234", AdminPassword: "admin"})

	assert.Equal(t, "Ali Parts", doc.Settings.ShopName)
	assert.Contains(t, doc.Settings.Extra, "theme")
	assert.True(t, ledger.VerifyPassword(doc.Settings.AdminPassword, "9999"), "existing password kept")
	assert.True(t, ledger.VerifyPassword(doc.Settings.LoginPassword, "1234"), "missing password backfilled")
	assert.True(t, report.PasswordsBackfilled)

	assert.Equal(t, "2024-01-05", doc.ActiveSessionDate)
	require.NotNil(t, doc.License)
	assert.Equal(t, "LIC-1", doc.License.Key)

	require.Len(t, doc.Notifications, 2)
	assert.Equal(t, ledger.NotifyInfo, doc.Notifications[0].Type, "unknown type becomes info")
	assert.True(t, doc.Notifications[0].Read)
	summary := doc.Notifications[1]
	assert.Equal(t, ledger.NotifyWarning, summary.Type, "records were dropped")
	assert.Equal(t, report.Summary(), summary.Text)
}

func TestMigrate_RelinksOperationByName(t *testing.T) {
	legacy := legacyDoc(t, `{
		"customers": [{"id": "c1", "name": "Ahmad"}],
		"operations": [{"id": "o1", "customerId": "gone", "customerName": "AHMAD",
			"partName": "Oil", "quantity": 2, "totalPrice": 30}]
	}`)

	doc, report := ledger.Migrate(legacy, march10, ledger.Defaults{})

	require.Len(t, doc.Operations, 1)
	assert.Equal(t, "c1", doc.Operations[0].CustomerID)
	assert.Equal(t, 1, report.Operations.Repaired)
	c1, _ := doc.Customer("c1")
	assertDecimal(t, 30, c1.Balance, "no legacy balance: replay is taken as is")
	assert.Empty(t, ledger.Audit(doc))
}

func TestMigrate_EmptyLegacyDocument(t *testing.T) {
	doc, report := ledger.Migrate(map[string]any{}, march10, ledger.Defaults{})

	assert.Equal(t, ledger.CurrentVersion, doc.Version)
	assert.Empty(t, doc.Customers)
	assert.Zero(t, report.Dropped())
	require.Len(t, doc.Notifications, 1)
	assert.Equal(t, ledger.NotifyInfo, doc.Notifications[0].Type)
}

func TestDocumentVersion(t *testing.T) {
	assert.Equal(t, 0, ledger.DocumentVersion(map[string]any{}))
	assert.Equal(t, 2, ledger.DocumentVersion(map[string]any{"version": json.Number("2")}))
	assert.Equal(t, 1, ledger.DocumentVersion(map[string]any{"version": "1"}))
}
