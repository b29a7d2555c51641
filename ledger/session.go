/*
session.go - Business-day session lifecycle

STATES:
  closed  --(first operation or direct transaction)-->  open(today)
  open    --(CloseDay with admin password)--------->    closed

  A session whose date is before today is "stale". The engine never blocks
  mutations on a stale session: forcing the end-of-day flow is the caller's
  job. The rollover scheduler only warns.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateOf is the shop-calendar date of t, as YYYY-MM-DD.
func dateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

func (c *change) openSession() {
	if c.doc.ActiveSessionDate == "" {
		c.doc.ActiveSessionDate = dateOf(c.now, c.loc)
	}
}

// SessionStatus describes the active session as of a given instant.
type SessionStatus struct {
	Date     string          `json:"date,omitempty"`
	Today    string          `json:"today"`
	Open     bool            `json:"open"`
	Stale    bool            `json:"stale"`
	Expected decimal.Decimal `json:"expected"`
}

// SessionStale reports whether doc has an open session dated before today.
func SessionStale(doc *Document, now time.Time, loc *time.Location) bool {
	return doc.ActiveSessionDate != "" && doc.ActiveSessionDate < dateOf(now, loc)
}

// Session reports the active session and its expected cash so far.
func (e *Engine) Session() SessionStatus {
	doc := e.Snapshot()
	now := e.now()
	st := SessionStatus{
		Date:  doc.ActiveSessionDate,
		Today: dateOf(now, e.loc),
		Open:  doc.ActiveSessionDate != "",
		Stale: SessionStale(doc, now, e.loc),
	}
	if st.Open {
		st.Expected = CollectedTotal(doc, st.Date, e.loc)
	}
	return st
}

// CloseDay reconciles the active session against the counted cash and
// clears it. The admin password is a second factor; a mismatch changes
// nothing.
func (e *Engine) CloseDay(ctx context.Context, counted decimal.Decimal, adminPassword, note string) (DayClosure, error) {
	var closure DayClosure
	_, err := e.mutate(ctx, "close_day", func(c *change) (bool, error) {
		date := c.doc.ActiveSessionDate
		if date == "" {
			return false, ErrSessionNotOpen
		}
		if !VerifyPassword(c.doc.Settings.AdminPassword, adminPassword) {
			return false, ErrUnauthorized
		}
		expected := CollectedTotal(c.doc, date, c.loc)
		closure = DayClosure{
			ID:         ensureID("day", ""),
			Date:       date,
			Expected:   expected,
			Counted:    counted,
			Difference: counted.Sub(expected),
			Note:       strings.TrimSpace(note),
			ClosedAt:   c.now,
		}
		c.doc.DayClosures = append(c.doc.DayClosures, closure)
		c.doc.ActiveSessionDate = ""

		kind := NotifySuccess
		if !closure.Difference.IsZero() {
			kind = NotifyWarning
		}
		c.notify(fmt.Sprintf("Day %s closed: expected %s, counted %s, difference %s",
			date, expected.StringFixed(2), counted.StringFixed(2), closure.Difference.StringFixed(2)), kind)
		return true, nil
	})
	if err != nil {
		return DayClosure{}, err
	}
	return closure, nil
}
