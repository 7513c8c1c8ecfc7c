package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrATMUnavailable    = errors.New("ATM not registered or not active")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotDispensable    = errors.New("amount cannot be dispensed")
	ErrConflict          = errors.New("conflict")
	ErrNoAccounts        = errors.New("no accounts to display")
)

// NotDispensableError is returned when the note stock cannot cover the
// requested amount exactly. Fallback, when set, is the highest lower amount
// the same stock can dispense.
type NotDispensableError struct {
	Fallback *int64
}

func (e *NotDispensableError) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("amount cannot be dispensed, try %d instead", *e.Fallback)
	}
	return "amount cannot be dispensed, try a different amount"
}

func (e *NotDispensableError) Unwrap() error {
	return ErrNotDispensable
}

// WithdrawRequest asks for a cash withdrawal of Amount whole currency units
// from ATM ATMID against the client's account.
type WithdrawRequest struct {
	ClientID      int64  `json:"client_id"`
	AccountNumber string `json:"account_number"`
	ATMID         int64  `json:"atm_id"`
	Amount        int64  `json:"amount"`
}

// DispensedNote is one line of a dispense plan.
type DispensedNote struct {
	DenominationID int64 `json:"denomination_id"`
	Value          int64 `json:"value"`
	Count          int64 `json:"count"`
}

// AccountSummary is the account view returned by withdrawals and balance
// enquiries: the raw balance plus its ZAR-converted value.
type AccountSummary struct {
	AccountNumber   string          `json:"account_number"`
	TypeCode        string          `json:"type_code"`
	TypeDescription string          `json:"type_description"`
	Currency        string          `json:"currency"`
	ConversionRate  decimal.Decimal `json:"conversion_rate"`
	Balance         decimal.Decimal `json:"balance"`
	ZARBalance      decimal.Decimal `json:"zar_balance"`
	AccountLimit    decimal.Decimal `json:"account_limit"`
}

// WithdrawResult is the committed outcome of a withdrawal.
type WithdrawResult struct {
	Reference string          `json:"reference"`
	Client    Client          `json:"client"`
	Account   AccountSummary  `json:"account"`
	Dispensed []DispensedNote `json:"dispensed"`
}

// BalanceResult is the outcome of a balance enquiry.
type BalanceResult struct {
	Client   Client           `json:"client"`
	Accounts []AccountSummary `json:"accounts"`
}
