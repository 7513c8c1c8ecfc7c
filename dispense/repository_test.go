package dispense_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bankops/balance-dispense/dispense"
	"github.com/bankops/balance-dispense/dispense/models"
)

func TestApplyWithdrawal_StaleSnapshot(t *testing.T) {
	repo := seedBase(t)
	account := seedAccount(t, repo, 5000, true)
	seedStock(t, repo, 1, map[int64]int64{100: 5})

	snap, err := repo.ReadStock(1)
	require.NoError(t, err)

	// A concurrent commit bumps the stock version.
	balance, err := repo.ApplyWithdrawal(context.Background(), snap, account.ID, 100, -10000, map[int64]int64{100: 1})
	require.NoError(t, err)
	require.Equal(t, int64(4900), balance)

	_, err = repo.ApplyWithdrawal(context.Background(), snap, account.ID, 100, -10000, map[int64]int64{100: 1})
	require.ErrorIs(t, err, models.ErrConflict)

	// Only the first commit landed.
	got, err := repo.FindAccount(1, account.AccountNumber)
	require.NoError(t, err)
	require.Equal(t, int64(4900), got.Balance)
}

func TestApplyWithdrawal_QuantityGuard(t *testing.T) {
	repo := seedBase(t)
	account := seedAccount(t, repo, 5000, true)
	seedStock(t, repo, 1, map[int64]int64{100: 2})

	snap, err := repo.ReadStock(1)
	require.NoError(t, err)

	_, err = repo.ApplyWithdrawal(context.Background(), snap, account.ID, 300, -10000, map[int64]int64{100: 3})
	require.ErrorIs(t, err, models.ErrConflict)

	// Unknown denomination in the plan is also a conflict, not a panic.
	_, err = repo.ApplyWithdrawal(context.Background(), snap, account.ID, 50, -10000, map[int64]int64{50: 1})
	require.ErrorIs(t, err, models.ErrConflict)

	got, err := repo.FindAccount(1, account.AccountNumber)
	require.NoError(t, err)
	require.Equal(t, int64(5000), got.Balance)
}

func TestApplyWithdrawal_FloorRecheck(t *testing.T) {
	repo := seedBase(t)
	account := seedAccount(t, repo, 100, false)
	seedStock(t, repo, 1, map[int64]int64{100: 5})

	snap, err := repo.ReadStock(1)
	require.NoError(t, err)

	_, err = repo.ApplyWithdrawal(context.Background(), snap, account.ID, 200, 0, map[int64]int64{100: 2})
	require.ErrorIs(t, err, models.ErrConflict)

	snap, err = repo.ReadStock(1)
	require.NoError(t, err)
	require.Equal(t, int64(5), snap.Entries[0].Quantity)
}

func TestApplyWithdrawal_ReturnsCommittedBalance(t *testing.T) {
	repo := seedBase(t)
	account := seedAccount(t, repo, 5000, true)
	require.NoError(t, repo.CreateATM(&models.ATM{ID: 3, Name: "Airport", Active: true}))
	seedStock(t, repo, 1, map[int64]int64{100: 5})
	seedStock(t, repo, 3, map[int64]int64{100: 5})

	// Snapshots of two ATMs taken before either commit; both versions stay
	// valid, so both withdrawals against the same account land.
	snap1, err := repo.ReadStock(1)
	require.NoError(t, err)
	snap3, err := repo.ReadStock(3)
	require.NoError(t, err)

	balance, err := repo.ApplyWithdrawal(context.Background(), snap1, account.ID, 100, -10000, map[int64]int64{100: 1})
	require.NoError(t, err)
	require.Equal(t, int64(4900), balance)

	// The second commit reports the balance including the first debit, not
	// what its caller read before committing.
	balance, err = repo.ApplyWithdrawal(context.Background(), snap3, account.ID, 200, -10000, map[int64]int64{100: 2})
	require.NoError(t, err)
	require.Equal(t, int64(4700), balance)
}

func TestReadStock_ReturnsCopies(t *testing.T) {
	repo := seedBase(t)
	seedStock(t, repo, 1, map[int64]int64{100: 5})

	snap, err := repo.ReadStock(1)
	require.NoError(t, err)
	snap.Entries[0].Quantity = 0

	again, err := repo.ReadStock(1)
	require.NoError(t, err)
	require.Equal(t, int64(5), again.Entries[0].Quantity)
}

func TestCreateAccount_DuplicateNumber(t *testing.T) {
	repo := seedBase(t)
	seedAccount(t, repo, 5000, true)

	err := repo.CreateAccount(&models.Account{
		ID: "acc-2", ClientID: 1, AccountNumber: "4111111111111111",
		TypeCode: "SAV", Currency: "ZAR",
	})
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestFindActiveATM(t *testing.T) {
	repo := seedBase(t)

	atm, err := repo.FindActiveATM(1)
	require.NoError(t, err)
	require.Equal(t, "Main Street", atm.Name)

	_, err = repo.FindActiveATM(2)
	require.ErrorIs(t, err, dispense.ErrNotFound)

	_, err = repo.FindActiveATM(99)
	require.ErrorIs(t, err, dispense.ErrNotFound)
}

func TestConversionRate_CaseInsensitive(t *testing.T) {
	repo := dispense.NewRepository()
	require.NoError(t, repo.CreateConversionRate(models.ConversionRate{Code: "usd", Indicator: "*", Rate: decimal.RequireFromString("18.25")}))

	rate, err := repo.ConversionRate("USD")
	require.NoError(t, err)
	require.Equal(t, "usd", rate.Code)

	_, err = repo.ConversionRate("GBP")
	require.ErrorIs(t, err, dispense.ErrNotFound)
}

func TestSeedDemo(t *testing.T) {
	repo := dispense.NewRepository()
	require.NoError(t, dispense.SeedDemo(repo))

	accounts, err := repo.ListAccountsByClass(1, true)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	snap, err := repo.ReadStock(1)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 5)
}
