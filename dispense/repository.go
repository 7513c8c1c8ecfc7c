package dispense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/bankops/balance-dispense/dispense/models"
)

var ErrNotFound = fmt.Errorf("not found")

// Repository holds the directory data (clients, accounts, ATMs, rates) and
// the mutable state (balances, note stock). It is either memory-backed for
// tests and local runs, or Postgres-backed when constructed with a db.
type Repository struct {
	mu           sync.RWMutex
	clients      []*models.Client
	accounts     []*models.Account
	atms         []*models.ATM
	stock        map[int64][]*models.NoteStock
	stockVersion map[int64]int64
	rates        map[string]models.ConversionRate

	db *sql.DB
}

func NewRepository() *Repository {
	return &Repository{
		stock:        make(map[int64][]*models.NoteStock),
		stockVersion: make(map[int64]int64),
		rates:        make(map[string]models.ConversionRate),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateClient(client *models.Client) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.clients = append(r.clients, client)
		return nil
	}
	_, err := r.db.ExecContext(context.Background(), `
        INSERT INTO dispense.clients(client_id, title, name, surname)
        VALUES ($1,$2,$3,$4)
    `, client.ID, client.Title, client.Name, client.Surname)
	return err
}

func (r *Repository) CreateATM(atm *models.ATM) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.atms = append(r.atms, atm)
		return nil
	}
	_, err := r.db.ExecContext(context.Background(), `
        INSERT INTO dispense.atms(atm_id, name, location, active)
        VALUES ($1,$2,$3,$4)
    `, atm.ID, atm.Name, atm.Location, atm.Active)
	return err
}

func (r *Repository) CreateAccount(account *models.Account) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, a := range r.accounts {
			if a.AccountNumber == account.AccountNumber {
				return fmt.Errorf("account number exists: %w", models.ErrConflict)
			}
		}
		r.accounts = append(r.accounts, account)
		return nil
	}
	_, err := r.db.ExecContext(context.Background(), `
        INSERT INTO dispense.accounts(account_id, client_id, account_number, type_code, type_description, overdraft_eligible, currency, balance)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, account.ID, account.ClientID, account.AccountNumber, account.TypeCode, account.TypeDescription,
		account.OverdraftEligible, strings.ToUpper(account.Currency), account.Balance)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

// UpsertStock sets the quantity on hand of one denomination at one ATM.
func (r *Repository) UpsertStock(atmID int64, denomination models.Denomination, quantity int64) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, ns := range r.stock[atmID] {
			if ns.Denomination.Value == denomination.Value {
				ns.Quantity = quantity
				return nil
			}
		}
		r.stock[atmID] = append(r.stock[atmID], &models.NoteStock{Denomination: denomination, Quantity: quantity})
		return nil
	}
	ctx := context.Background()
	if _, err := r.db.ExecContext(ctx, `
        INSERT INTO dispense.denominations(denomination_id, value)
        VALUES ($1,$2) ON CONFLICT (denomination_id) DO NOTHING
    `, denomination.ID, denomination.Value); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO dispense.note_stock(atm_id, denomination_id, quantity)
        VALUES ($1,$2,$3)
        ON CONFLICT (atm_id, denomination_id) DO UPDATE SET quantity = EXCLUDED.quantity
    `, atmID, denomination.ID, quantity)
	return err
}

func (r *Repository) CreateConversionRate(rate models.ConversionRate) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rates[strings.ToUpper(rate.Code)] = rate
		return nil
	}
	_, err := r.db.ExecContext(context.Background(), `
        INSERT INTO dispense.conversion_rates(code, indicator, rate)
        VALUES ($1,$2,$3)
        ON CONFLICT (code) DO UPDATE SET indicator = EXCLUDED.indicator, rate = EXCLUDED.rate
    `, strings.ToUpper(rate.Code), rate.Indicator, rate.Rate.String())
	return err
}

// FindActiveATM returns the ATM when it exists and is active; missing and
// inactive machines are both ErrNotFound, matching what a client may learn.
func (r *Repository) FindActiveATM(atmID int64) (*models.ATM, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, atm := range r.atms {
			if atm.ID == atmID {
				if !atm.Active {
					return nil, ErrNotFound
				}
				cp := *atm
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(context.Background(), `
        SELECT atm_id, name, location, active FROM dispense.atms WHERE atm_id=$1
    `, atmID)
	var atm models.ATM
	if err := row.Scan(&atm.ID, &atm.Name, &atm.Location, &atm.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !atm.Active {
		return nil, ErrNotFound
	}
	return &atm, nil
}

func (r *Repository) FindClient(clientID int64) (*models.Client, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, c := range r.clients {
			if c.ID == clientID {
				cp := *c
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(context.Background(), `
        SELECT client_id, title, name, surname FROM dispense.clients WHERE client_id=$1
    `, clientID)
	var c models.Client
	if err := row.Scan(&c.ID, &c.Title, &c.Name, &c.Surname); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) FindAccount(clientID int64, accountNumber string) (*models.Account, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, a := range r.accounts {
			if a.ClientID == clientID && a.AccountNumber == accountNumber {
				cp := *a
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(context.Background(), `
        SELECT account_id, client_id, account_number, type_code, type_description, overdraft_eligible, currency, balance
          FROM dispense.accounts WHERE client_id=$1 AND account_number=$2
    `, clientID, accountNumber)
	return scanAccount(row)
}

// FindAccountByNumber serves the ISO 8583 path, where only the account
// number is on the wire; account numbers are unique across clients.
func (r *Repository) FindAccountByNumber(accountNumber string) (*models.Account, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, a := range r.accounts {
			if a.AccountNumber == accountNumber {
				cp := *a
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(context.Background(), `
        SELECT account_id, client_id, account_number, type_code, type_description, overdraft_eligible, currency, balance
          FROM dispense.accounts WHERE account_number=$1
    `, accountNumber)
	return scanAccount(row)
}

// ListAccountsByClass returns a client's accounts filtered by overdraft
// eligibility (the transactional / currency-account split).
func (r *Repository) ListAccountsByClass(clientID int64, overdraftEligible bool) ([]*models.Account, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var out []*models.Account
		for _, a := range r.accounts {
			if a.ClientID == clientID && a.OverdraftEligible == overdraftEligible {
				cp := *a
				out = append(out, &cp)
			}
		}
		return out, nil
	}
	rows, err := r.db.QueryContext(context.Background(), `
        SELECT account_id, client_id, account_number, type_code, type_description, overdraft_eligible, currency, balance
          FROM dispense.accounts WHERE client_id=$1 AND overdraft_eligible=$2
    `, clientID, overdraftEligible)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.ClientID, &a.AccountNumber, &a.TypeCode, &a.TypeDescription,
			&a.OverdraftEligible, &a.Currency, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ReadStock returns a consistent snapshot of one ATM's inventory. The
// snapshot version is what ApplyWithdrawal later checks against.
func (r *Repository) ReadStock(atmID int64) (models.StockSnapshot, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		snap := models.StockSnapshot{ATMID: atmID, Version: r.stockVersion[atmID]}
		for _, ns := range r.stock[atmID] {
			snap.Entries = append(snap.Entries, *ns)
		}
		return snap, nil
	}
	rows, err := r.db.QueryContext(context.Background(), `
        SELECT d.denomination_id, d.value, ns.quantity
          FROM dispense.note_stock ns
          JOIN dispense.denominations d ON d.denomination_id = ns.denomination_id
         WHERE ns.atm_id=$1
    `, atmID)
	if err != nil {
		return models.StockSnapshot{}, err
	}
	defer rows.Close()
	snap := models.StockSnapshot{ATMID: atmID}
	for rows.Next() {
		var ns models.NoteStock
		if err := rows.Scan(&ns.Denomination.ID, &ns.Denomination.Value, &ns.Quantity); err != nil {
			return models.StockSnapshot{}, err
		}
		snap.Entries = append(snap.Entries, ns)
	}
	return snap, rows.Err()
}

func (r *Repository) ConversionRate(code string) (models.ConversionRate, error) {
	code = strings.ToUpper(code)
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		rate, ok := r.rates[code]
		if !ok {
			return models.ConversionRate{}, ErrNotFound
		}
		return rate, nil
	}
	row := r.db.QueryRowContext(context.Background(), `
        SELECT code, indicator, rate FROM dispense.conversion_rates WHERE code=$1
    `, code)
	var rate models.ConversionRate
	var raw string
	if err := row.Scan(&rate.Code, &rate.Indicator, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConversionRate{}, ErrNotFound
		}
		return models.ConversionRate{}, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return models.ConversionRate{}, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	rate.Rate = d
	return rate, nil
}

// ApplyWithdrawal commits a withdrawal: every per-denomination decrement of
// the snapshot's ATM plus the account debit, as one atomic unit. plan maps
// note value to count. floor is the lowest balance the debit may leave. On
// success it returns the balance as committed, which may differ from any
// earlier read when another debit landed in between.
//
// The memory backend rejects a stale snapshot version; the db backend uses
// conditional updates, so any concurrent commit that would overdraw stock
// or balance comes back as models.ErrConflict and nothing is applied.
func (r *Repository) ApplyWithdrawal(ctx context.Context, snap models.StockSnapshot, accountID string, amount int64, floor int64, plan map[int64]int64) (int64, error) {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.stockVersion[snap.ATMID] != snap.Version {
			return 0, models.ErrConflict
		}

		var account *models.Account
		for _, a := range r.accounts {
			if a.ID == accountID {
				account = a
				break
			}
		}
		if account == nil {
			return 0, ErrNotFound
		}
		if account.Balance-amount < floor {
			return 0, models.ErrConflict
		}

		entries := r.stock[snap.ATMID]
		for value, count := range plan {
			found := false
			for _, ns := range entries {
				if ns.Denomination.Value == value {
					if ns.Quantity < count {
						return 0, models.ErrConflict
					}
					found = true
					break
				}
			}
			if !found {
				return 0, models.ErrConflict
			}
		}

		for value, count := range plan {
			for _, ns := range entries {
				if ns.Denomination.Value == value {
					ns.Quantity -= count
					break
				}
			}
		}
		account.Balance -= amount
		r.stockVersion[snap.ATMID]++
		return account.Balance, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '3s'`); err != nil {
		return 0, err
	}

	for value, count := range plan {
		res, err := tx.ExecContext(ctx, `
            UPDATE dispense.note_stock ns
               SET quantity = quantity - $3
              FROM dispense.denominations d
             WHERE ns.atm_id = $1
               AND d.denomination_id = ns.denomination_id
               AND d.value = $2
               AND ns.quantity >= $3
        `, snap.ATMID, value, count)
		if err != nil {
			return 0, conflictOr(err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return 0, models.ErrConflict
		}
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
        UPDATE dispense.accounts
           SET balance = balance - $2
         WHERE account_id = $1
           AND balance - $2 >= $3
     RETURNING balance
    `, accountID, amount, floor).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrConflict
		}
		return 0, conflictOr(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, conflictOr(err)
	}
	return balance, nil
}

// Ping returns DB readiness.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.ClientID, &a.AccountNumber, &a.TypeCode, &a.TypeDescription,
		&a.OverdraftEligible, &a.Currency, &a.Balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// conflictOr maps serialization failures to models.ErrConflict so callers
// can tell a retryable commit race from a hard failure.
func conflictOr(err error) error {
	if isSerializationFailure(err) {
		return models.ErrConflict
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && (pe.Code == "40001" || pe.Code == "40P01") {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && (pgerr.Code == "40001" || pgerr.Code == "40P01") {
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
