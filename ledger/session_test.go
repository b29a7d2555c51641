package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestSession_OpensOnFirstSale(t *testing.T) {
	env := newTestEnv(t)
	filter := addFilter(t, env)
	c := addCustomer(t, env, "C")

	st := env.engine.Session()
	assert.False(t, st.Open, "adding parts and customers does not open a session")

	_, err := env.engine.AddOperation(context.Background(), sale(t, env, c.ID, filter.ID, 2, 60, ""))
	require.NoError(t, err)

	st = env.engine.Session()
	assert.True(t, st.Open)
	assert.False(t, st.Stale)
	assert.Equal(t, "2025-03-10", st.Date)
	assertDecimal(t, 60, st.Expected)
}

func TestCloseDay(t *testing.T) {
	// GIVEN: A day with 300 paid on a sale and a 50 payment
	// WHEN: The day is closed with 340 counted
	// THEN: Expected is 350, the 10 shortfall is recorded with a warning,
	//       and the next sale opens a new session

	env := newTestEnv(t)
	ctx := context.Background()
	filter := addFilter(t, env)
	c := addCustomer(t, env, "C")
	_, err := env.engine.AddOperation(ctx, sale(t, env, c.ID, filter.ID, 8, 300, "partial"))
	require.NoError(t, err)
	_, _, err = env.engine.RecordDirectTransaction(ctx, c.ID, dec(50), ledger.TxPayment, "cash")
	require.NoError(t, err)

	closure, err := env.engine.CloseDay(ctx, dec(340), "admin", "drawer short")
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", closure.Date)
	assertDecimal(t, 350, closure.Expected)
	assertDecimal(t, -10, closure.Difference)
	assert.Equal(t, "drawer short", closure.Note)

	doc := env.engine.Snapshot()
	assert.Empty(t, doc.ActiveSessionDate)
	require.Len(t, doc.DayClosures, 1)
	assert.Equal(t, ledger.NotifyWarning, env.sunk[len(env.sunk)-1].Kind)

	env.now = march10.Add(24 * time.Hour)
	_, err = env.engine.AddOperation(ctx, sale(t, env, c.ID, filter.ID, 1, 50, ""))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", env.engine.Snapshot().ActiveSessionDate)
}

func TestCloseDay_ExactCountIsSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := addCustomer(t, env, "C")
	_, _, err := env.engine.RecordDirectTransaction(ctx, c.ID, dec(20), ledger.TxPayment, "")
	require.NoError(t, err)

	closure, err := env.engine.CloseDay(ctx, dec(20), "admin", "")
	require.NoError(t, err)

	assert.True(t, closure.Difference.IsZero())
	assert.Equal(t, ledger.NotifySuccess, env.sunk[len(env.sunk)-1].Kind)
}

func TestCloseDay_Refusals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.CloseDay(ctx, dec(0), "admin", "")
	assert.ErrorIs(t, err, ledger.ErrSessionNotOpen)

	c := addCustomer(t, env, "C")
	_, _, err = env.engine.RecordDirectTransaction(ctx, c.ID, dec(20), ledger.TxPayment, "")
	require.NoError(t, err)

	_, err = env.engine.CloseDay(ctx, dec(20), "wrong", "")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, "2025-03-10", env.engine.Snapshot().ActiveSessionDate, "a refused close leaves the session open")
	assert.Empty(t, env.engine.Snapshot().DayClosures)
}

func TestSession_StaleAfterMidnight(t *testing.T) {
	// GIVEN: A session opened on March 10
	// WHEN: The clock passes midnight without closing the day
	// THEN: The session is stale but mutations still go through

	env := newTestEnv(t)
	ctx := context.Background()
	c := addCustomer(t, env, "C")
	_, _, err := env.engine.RecordDirectTransaction(ctx, c.ID, dec(20), ledger.TxDebt, "")
	require.NoError(t, err)

	env.now = time.Date(2025, time.March, 11, 0, 5, 0, 0, time.UTC)

	st := env.engine.Session()
	assert.True(t, st.Stale)
	assert.Equal(t, "2025-03-10", st.Date)
	assert.Equal(t, "2025-03-11", st.Today)
	assert.True(t, ledger.SessionStale(env.engine.Snapshot(), env.now, time.UTC))

	_, ok, err := env.engine.RecordDirectTransaction(ctx, c.ID, dec(5), ledger.TxDebt, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-03-10", env.engine.Snapshot().ActiveSessionDate, "the old session stays until closed")
}

// =============================================================================
// PASSWORDS & SETTINGS
// =============================================================================

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.ChangePassword(ctx, ledger.AdminPassword, "nope", "s3cret")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = env.engine.ChangePassword(ctx, ledger.AdminPassword, "admin", "  ")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	err = env.engine.ChangePassword(ctx, "root", "admin", "s3cret")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	require.NoError(t, env.engine.ChangePassword(ctx, ledger.AdminPassword, "admin", "s3cret"))
	stored := env.engine.Snapshot().Settings.AdminPassword
	assert.NotEqual(t, "s3cret", stored, "stored hashed")
	assert.True(t, ledger.VerifyPassword(stored, "s3cret"))
	assert.True(t, ledger.VerifyPassword(env.engine.Snapshot().Settings.LoginPassword, "1234"), "login untouched")
}

func TestVerifyPassword_LegacyPlainText(t *testing.T) {
	assert.True(t, ledger.VerifyPassword("0000", "0000"))
	assert.False(t, ledger.VerifyPassword("0000", "0001"))
	assert.False(t, ledger.VerifyPassword("", ""))
}

func TestSettings_KeepUnknownKeys(t *testing.T) {
	var s ledger.Settings
	require.NoError(t, s.UnmarshalJSON([]byte(`{"shopName":"ورشة علي","theme":"dark","receiptWidth":58}`)))
	assert.Equal(t, "ورشة علي", s.ShopName)

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"shopName":"ورشة علي","theme":"dark","receiptWidth":58}`, string(out))
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)
	name := " Ali Parts "
	changed, err := env.engine.UpdateSettings(context.Background(), ledger.SettingsPatch{ShopName: &name})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Ali Parts", env.engine.Snapshot().Settings.ShopName)

	changed, err = env.engine.UpdateSettings(context.Background(), ledger.SettingsPatch{})
	require.NoError(t, err)
	assert.False(t, changed)
}
