package dispense

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bankops/balance-dispense/dispense/models"
)

// API is the HTTP API for the dispense service.
type API struct {
	service *Service
}

func NewAPI(service *Service) *API {
	return &API{
		service: service,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/clients/{clientID}", func(r chi.Router) {
		r.Post("/withdrawals", a.withdraw)
		r.Get("/balances/transactional", a.transactionalBalances)
		r.Get("/balances/currency", a.currencyBalances)
	})
}

type withdrawBody struct {
	AccountNumber string `json:"account_number"`
	ATMID         int64  `json:"atm_id"`
	Amount        int64  `json:"amount"`
}

type errorBody struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	FallbackAmount *int64 `json:"fallback_amount,omitempty"`
}

func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "invalid client id"})
		return
	}

	body := withdrawBody{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: err.Error()})
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "amount must be a positive integer"})
		return
	}
	if body.AccountNumber == "" {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "account_number is required"})
		return
	}

	result, err := a.service.Withdraw(models.WithdrawRequest{
		ClientID:      clientID,
		AccountNumber: body.AccountNumber,
		ATMID:         body.ATMID,
		Amount:        body.Amount,
	})
	if err != nil {
		writeWithdrawError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (a *API) transactionalBalances(w http.ResponseWriter, r *http.Request) {
	a.balances(w, r, a.service.TransactionalBalances)
}

func (a *API) currencyBalances(w http.ResponseWriter, r *http.Request) {
	a.balances(w, r, a.service.CurrencyBalances)
}

func (a *API) balances(w http.ResponseWriter, r *http.Request, query func(int64) (*models.BalanceResult, error)) {
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "invalid client id"})
		return
	}

	result, err := query(clientID)
	if err != nil {
		if errors.Is(err, models.ErrNoAccounts) {
			writeError(w, http.StatusNotFound, errorBody{Kind: "no_accounts", Message: err.Error()})
		} else {
			writeError(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: err.Error()})
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// writeWithdrawError maps the withdrawal error taxonomy onto HTTP statuses.
// NotDispensable is the one kind with an enriched payload (the fallback
// suggestion).
func writeWithdrawError(w http.ResponseWriter, err error) {
	var ndErr *models.NotDispensableError
	switch {
	case errors.As(err, &ndErr):
		writeError(w, http.StatusUnprocessableEntity, errorBody{
			Kind:           "not_dispensable",
			Message:        ndErr.Error(),
			FallbackAmount: ndErr.Fallback,
		})
	case errors.Is(err, models.ErrATMUnavailable):
		writeError(w, http.StatusNotFound, errorBody{Kind: "atm_unavailable", Message: err.Error()})
	case errors.Is(err, models.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, errorBody{Kind: "account_not_found", Message: err.Error()})
	case errors.Is(err, models.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, errorBody{Kind: "insufficient_funds", Message: err.Error()})
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, errorBody{Kind: "conflict", Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error errorBody `json:"error"`
	}{body})
}
