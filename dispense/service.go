package dispense

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/bankops/balance-dispense/dispense/models"
	"github.com/bankops/balance-dispense/internal/fx"
	"github.com/bankops/balance-dispense/internal/notes"
)

// Service coordinates withdrawal transactions and balance enquiries.
type Service struct {
	repo   *Repository
	cfg    *Config
	logger *slog.Logger
}

func NewService(logger *slog.Logger, repo *Repository, cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "service")),
	}
}

// Withdraw runs one withdrawal transaction: active-ATM check, account
// lookup, funds check, plan computation, then a single atomic commit of the
// stock decrements and the balance debit. The commit is the last fallible
// step: everything the result needs (client, conversion rate) is resolved
// first, so no error can surface after money has moved.
func (s *Service) Withdraw(req models.WithdrawRequest) (*models.WithdrawResult, error) {
	s.logger.Info("starting withdrawal",
		slog.Int64("client_id", req.ClientID),
		slog.String("account", req.AccountNumber),
		slog.Int64("atm_id", req.ATMID),
		slog.Int64("amount", req.Amount),
	)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	if _, err := s.repo.FindActiveATM(req.ATMID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, models.ErrATMUnavailable
		}
		return nil, fmt.Errorf("finding atm: %w", err)
	}

	account, err := s.repo.FindAccount(req.ClientID, req.AccountNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}

	floor := s.overdraftFloor(account)
	if err := validateFunds(account, req.Amount, floor); err != nil {
		s.logger.Error("insufficient funds",
			slog.Int64("balance", account.Balance),
			slog.Int64("requested", req.Amount),
			slog.Int64("floor", floor),
		)
		return nil, err
	}

	snap, err := s.repo.ReadStock(req.ATMID)
	if err != nil {
		return nil, fmt.Errorf("reading stock: %w", err)
	}

	stock := bundles(snap)
	plan, err := notes.Allocate(req.Amount, stock)
	if err != nil {
		ndErr := &models.NotDispensableError{}
		if fallback, ok := notes.SuggestFallback(req.Amount, stock); ok {
			ndErr.Fallback = &fallback
		}
		return nil, ndErr
	}

	client, err := s.repo.FindClient(req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("finding client: %w", err)
	}
	multiplier, err := s.multiplierFor(account.Currency)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.repo.ApplyWithdrawal(context.Background(), snap, account.ID, req.Amount, floor, plan)
	if err != nil {
		return nil, fmt.Errorf("committing withdrawal: %w", err)
	}

	result := &models.WithdrawResult{
		Reference: uuid.New().String(),
		Client:    *client,
		Account:   accountSummary(account, newBalance, multiplier, decimal.Decimal{}),
		Dispensed: dispensedNotes(snap, plan),
	}

	s.logger.Info("withdrawal successful",
		slog.String("reference", result.Reference),
		slog.Int64("new_balance", newBalance),
	)

	return result, nil
}

// WithdrawByAccount serves the ATM network path, where only the account
// number is on the wire; the client is resolved from the account directory.
func (s *Service) WithdrawByAccount(accountNumber string, atmID, amount int64) (*models.WithdrawResult, error) {
	account, err := s.repo.FindAccountByNumber(accountNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return s.Withdraw(models.WithdrawRequest{
		ClientID:      account.ClientID,
		AccountNumber: account.AccountNumber,
		ATMID:         atmID,
		Amount:        amount,
	})
}

// TransactionalBalances lists a client's overdraft-eligible accounts,
// highest balance first, each converted to ZAR.
func (s *Service) TransactionalBalances(clientID int64) (*models.BalanceResult, error) {
	accounts, err := s.repo.ListAccountsByClass(clientID, true)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no transactional accounts to display: %w", models.ErrNoAccounts)
	}

	client, err := s.repo.FindClient(clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("client not found: %w", models.ErrNoAccounts)
		}
		return nil, fmt.Errorf("finding client: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Balance > accounts[j].Balance
	})

	summaries := make([]models.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		multiplier, err := s.multiplierFor(a.Currency)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, accountSummary(a, a.Balance, multiplier, decimal.Decimal{}))
	}

	return &models.BalanceResult{Client: *client, Accounts: summaries}, nil
}

// CurrencyBalances lists a client's currency (non-transactional) accounts
// sorted by their ZAR value ascending.
func (s *Service) CurrencyBalances(clientID int64) (*models.BalanceResult, error) {
	accounts, err := s.repo.ListAccountsByClass(clientID, false)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no currency accounts to display: %w", models.ErrNoAccounts)
	}

	client, err := s.repo.FindClient(clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("client not found: %w", models.ErrNoAccounts)
		}
		return nil, fmt.Errorf("finding client: %w", err)
	}

	summaries := make([]models.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		limit := decimal.Decimal{}
		if a.OverdraftEligible {
			limit = decimal.NewFromInt(-s.cfg.OverdraftLimit)
		}
		multiplier, err := s.multiplierFor(a.Currency)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, accountSummary(a, a.Balance, multiplier, limit))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ZARBalance.LessThan(summaries[j].ZARBalance)
	})

	return &models.BalanceResult{Client: *client, Accounts: summaries}, nil
}

func (s *Service) overdraftFloor(account *models.Account) int64 {
	if account.OverdraftEligible {
		return s.cfg.OverdraftLimit
	}
	return 0
}

// validateFunds is the funds check: the debit may not take the balance
// below the floor. Pure; identical inputs always agree.
func validateFunds(account *models.Account, amount, floor int64) error {
	if account.Balance-amount < floor {
		return models.ErrInsufficientFunds
	}
	return nil
}

// accountSummary builds the account view from a committed balance and a
// pre-resolved conversion multiplier. Pure; all lookups happen before the
// withdrawal commit.
func accountSummary(account *models.Account, balance int64, multiplier, limit decimal.Decimal) models.AccountSummary {
	balanceDec := decimal.NewFromInt(balance)
	return models.AccountSummary{
		AccountNumber:   account.AccountNumber,
		TypeCode:        account.TypeCode,
		TypeDescription: account.TypeDescription,
		Currency:        account.Currency,
		ConversionRate:  multiplier,
		Balance:         balanceDec,
		ZARBalance:      balanceDec.Mul(multiplier),
		AccountLimit:    limit,
	}
}

func (s *Service) multiplierFor(currency string) (decimal.Decimal, error) {
	if strings.EqualFold(currency, fx.BaseCurrency) {
		return fx.Multiplier(fx.Rate{Code: fx.BaseCurrency})
	}
	cr, err := s.repo.ConversionRate(currency)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("conversion rate for %s: %w", currency, err)
	}
	return fx.Multiplier(fx.Rate{Code: cr.Code, Indicator: cr.Indicator, Rate: cr.Rate})
}

func bundles(snap models.StockSnapshot) []notes.Bundle {
	out := make([]notes.Bundle, 0, len(snap.Entries))
	for _, ns := range snap.Entries {
		out = append(out, notes.Bundle{Value: ns.Denomination.Value, Quantity: ns.Quantity})
	}
	return out
}

// dispensedNotes orders the plan largest denomination first and attaches
// denomination ids from the snapshot.
func dispensedNotes(snap models.StockSnapshot, plan map[int64]int64) []models.DispensedNote {
	out := make([]models.DispensedNote, 0, len(plan))
	for value, count := range plan {
		note := models.DispensedNote{Value: value, Count: count}
		for _, ns := range snap.Entries {
			if ns.Denomination.Value == value {
				note.DenominationID = ns.Denomination.ID
				break
			}
		}
		out = append(out, note)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value > out[j].Value
	})
	return out
}
