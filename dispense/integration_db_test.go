package dispense_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"

	"github.com/bankops/balance-dispense/dispense"
	"github.com/bankops/balance-dispense/dispense/models"
)

// TestWithdrawal_PGCommit runs one withdrawal against a real Postgres and
// verifies the stock decrement and the balance debit landed in one unit.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg.
func TestWithdrawal_PGCommit(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	repo := dispense.NewPGRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard))
	svc := dispense.NewService(logger, repo, dispense.DefaultConfig())

	if err := repo.CreateClient(&models.Client{ID: 9001, Title: "Ms", Name: "Thandi", Surname: "Nkosi"}); err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := repo.CreateATM(&models.ATM{ID: 9001, Name: "Integration", Location: "CI", Active: true}); err != nil {
		t.Fatalf("create atm: %v", err)
	}
	account := &models.Account{
		ID: "it-acc-1", ClientID: 9001, AccountNumber: "79927398713",
		TypeCode: "CHQ", TypeDescription: "Cheque Account",
		OverdraftEligible: true, Currency: "ZAR", Balance: 1000,
	}
	if err := repo.CreateAccount(account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := repo.UpsertStock(9001, models.Denomination{ID: 9001, Value: 100}, 5); err != nil {
		t.Fatalf("upsert stock: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`delete from dispense.note_stock where atm_id=9001`)
		db.Exec(`delete from dispense.accounts where account_id='it-acc-1'`)
		db.Exec(`delete from dispense.atms where atm_id=9001`)
		db.Exec(`delete from dispense.clients where client_id=9001`)
	})

	result, err := svc.Withdraw(models.WithdrawRequest{ClientID: 9001, AccountNumber: "79927398713", ATMID: 9001, Amount: 300})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(result.Dispensed) != 1 || result.Dispensed[0].Count != 3 {
		t.Fatalf("dispensed = %+v, want 3 x 100", result.Dispensed)
	}

	var balance int64
	if err := db.QueryRow(`select balance from dispense.accounts where account_id='it-acc-1'`).Scan(&balance); err != nil {
		t.Fatalf("scan balance: %v", err)
	}
	if balance != 700 {
		t.Fatalf("balance = %d, want 700", balance)
	}

	var quantity int64
	if err := db.QueryRow(`select quantity from dispense.note_stock where atm_id=9001 and denomination_id=9001`).Scan(&quantity); err != nil {
		t.Fatalf("scan quantity: %v", err)
	}
	if quantity != 2 {
		t.Fatalf("quantity = %d, want 2", quantity)
	}

	// The conditional update rejects a debit that would cross the floor.
	snap, err := repo.ReadStock(9001)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	_, err = repo.ApplyWithdrawal(context.Background(), snap, "it-acc-1", 20000, dispense.DefaultConfig().OverdraftLimit, map[int64]int64{100: 1})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("apply over floor: got %v, want conflict", err)
	}
}
