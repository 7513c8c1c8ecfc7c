package dispense

import (
	"github.com/shopspring/decimal"

	"github.com/bankops/balance-dispense/dispense/models"
)

// SeedDemo loads a small demo dataset into a memory repository: one client
// with transactional and currency accounts, an active and an inactive ATM,
// a stocked inventory, and a few conversion rates.
func SeedDemo(repo *Repository) error {
	if err := repo.CreateClient(&models.Client{ID: 1, Title: "Mr", Name: "John", Surname: "Smith"}); err != nil {
		return err
	}

	atms := []*models.ATM{
		{ID: 1, Name: "Main Street", Location: "12 Main Street", Active: true},
		{ID: 2, Name: "Depot", Location: "Warehouse 4", Active: false},
	}
	for _, atm := range atms {
		if err := repo.CreateATM(atm); err != nil {
			return err
		}
	}

	accounts := []*models.Account{
		{ID: "acc-chq-1", ClientID: 1, AccountNumber: "4111111111111111", TypeCode: "CHQ", TypeDescription: "Cheque Account", OverdraftEligible: true, Currency: "ZAR", Balance: 5000},
		{ID: "acc-sav-1", ClientID: 1, AccountNumber: "5500005555555559", TypeCode: "SAV", TypeDescription: "Savings Account", OverdraftEligible: true, Currency: "ZAR", Balance: 12000},
		{ID: "acc-usd-1", ClientID: 1, AccountNumber: "6011000990139424", TypeCode: "CFCA", TypeDescription: "Customer Foreign Currency Account", OverdraftEligible: false, Currency: "USD", Balance: 800},
		{ID: "acc-eur-1", ClientID: 1, AccountNumber: "30569309025904", TypeCode: "CFCA", TypeDescription: "Customer Foreign Currency Account", OverdraftEligible: false, Currency: "EUR", Balance: 300},
	}
	for _, account := range accounts {
		if err := repo.CreateAccount(account); err != nil {
			return err
		}
	}

	stock := []struct {
		denomination models.Denomination
		quantity     int64
	}{
		{models.Denomination{ID: 1, Value: 200}, 10},
		{models.Denomination{ID: 2, Value: 100}, 10},
		{models.Denomination{ID: 3, Value: 50}, 10},
		{models.Denomination{ID: 4, Value: 20}, 10},
		{models.Denomination{ID: 5, Value: 10}, 10},
	}
	for _, s := range stock {
		if err := repo.UpsertStock(1, s.denomination, s.quantity); err != nil {
			return err
		}
	}

	rates := []models.ConversionRate{
		{Code: "USD", Indicator: "*", Rate: decimal.RequireFromString("18.25")},
		{Code: "EUR", Indicator: "*", Rate: decimal.RequireFromString("19.80")},
		{Code: "JPY", Indicator: "/", Rate: decimal.RequireFromString("8.10")},
	}
	for _, rate := range rates {
		if err := repo.CreateConversionRate(rate); err != nil {
			return err
		}
	}

	return nil
}
