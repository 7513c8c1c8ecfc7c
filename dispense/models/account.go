package models

import "github.com/shopspring/decimal"

// Client is a bank client as known to the account directory.
type Client struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// Account is a client account. Balance is held in whole currency units;
// it may be negative only for overdraft-eligible (transactional) accounts.
type Account struct {
	ID                string `json:"id"`
	ClientID          int64  `json:"client_id"`
	AccountNumber     string `json:"account_number"`
	TypeCode          string `json:"type_code"`
	TypeDescription   string `json:"type_description"`
	OverdraftEligible bool   `json:"overdraft_eligible"`
	Currency          string `json:"currency"`
	Balance           int64  `json:"balance"`
}

// ATM is a physical machine holding a note inventory.
type ATM struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
}

// Denomination is a banknote face value. Immutable reference data.
type Denomination struct {
	ID    int64 `json:"id"`
	Value int64 `json:"value"`
}

// NoteStock is the quantity on hand of one denomination at one ATM.
type NoteStock struct {
	Denomination Denomination `json:"denomination"`
	Quantity     int64        `json:"quantity"`
}

// StockSnapshot is a point-in-time read of an ATM's inventory. Version is
// bumped on every committed withdrawal so a stale snapshot can be detected
// at commit time.
type StockSnapshot struct {
	ATMID   int64
	Version int64
	Entries []NoteStock
}

// ConversionRate converts one unit of a foreign currency to ZAR. Indicator
// is "*" (multiply by Rate) or "/" (divide by Rate).
type ConversionRate struct {
	Code      string
	Indicator string
	Rate      decimal.Decimal
}
