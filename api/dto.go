/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies the web UI sends that are not ledger entities
  themselves. Entity bodies (part, customer, operation, transaction) are
  decoded as loose ledger.Record values and go through the ledger's
  validators, so the UI may send numbers as strings or Arabic-Indic digits.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/validate.go: Record -> entity
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

// RestockRequest adds (or, negative, removes) stock outside of a sale.
type RestockRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

// CloseDayRequest is the end-of-day reconciliation.
type CloseDayRequest struct {
	Counted       decimal.Decimal `json:"counted"`
	AdminPassword string          `json:"adminPassword"`
	Note          string          `json:"note"`
}

// ChangePasswordRequest replaces the login or admin password.
type ChangePasswordRequest struct {
	Kind    ledger.PasswordKind `json:"kind"`
	Current string              `json:"current"`
	Next    string              `json:"next"`
}

// TransactionResponse is returned by POST /api/transactions.
type TransactionResponse struct {
	Transaction ledger.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}

// ImportResponse reports an import, with a migration summary if the
// imported file was from an older version.
type ImportResponse struct {
	Imported  bool                    `json:"imported"`
	Migration *ledger.MigrationReport `json:"migration,omitempty"`
}

// MigrationResponse is the one-time upgrade summary shown after startup.
type MigrationResponse struct {
	Migrated bool                    `json:"migrated"`
	Report   *ledger.MigrationReport `json:"report,omitempty"`
	Summary  string                  `json:"summary,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}
