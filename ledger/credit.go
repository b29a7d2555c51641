package ledger

import "github.com/shopspring/decimal"

// PlanCredit returns how much of a customer's credit (a negative balance)
// can be spent on an amount due: min(-balance, due), or zero when the
// customer has no credit or nothing is due.
func PlanCredit(balance, due decimal.Decimal) decimal.Decimal {
	if !balance.IsNegative() || !due.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(balance.Neg(), due)
}
