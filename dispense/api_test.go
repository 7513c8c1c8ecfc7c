package dispense_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bankops/balance-dispense/dispense"
	"github.com/bankops/balance-dispense/dispense/models"
)

type apiError struct {
	Error struct {
		Kind           string `json:"kind"`
		Message        string `json:"message"`
		FallbackAmount *int64 `json:"fallback_amount"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, repo *dispense.Repository) *chi.Mux {
	t.Helper()
	router := chi.NewRouter()
	api := dispense.NewAPI(newTestService(t, repo))
	api.AppendRoutes(router)
	return router
}

func postWithdrawal(t *testing.T, router http.Handler, clientID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/clients/"+clientID+"/withdrawals", bytes.NewBufferString(body))
	router.ServeHTTP(w, req)
	return w
}

func TestWithdrawalsEndpoint(t *testing.T) {
	repo := seedBase(t)
	seedAccount(t, repo, 5000, true)
	seedStock(t, repo, 1, map[int64]int64{200: 5, 100: 5, 50: 5})
	router := newTestRouter(t, repo)

	t.Run("success", func(t *testing.T) {
		w := postWithdrawal(t, router, "1", `{"account_number":"4111111111111111","atm_id":1,"amount":300}`)
		require.Equal(t, http.StatusOK, w.Code)

		var result models.WithdrawResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.NotEmpty(t, result.Reference)
		require.Equal(t, "4111111111111111", result.Account.AccountNumber)
		require.Len(t, result.Dispensed, 2)
		require.Equal(t, int64(200), result.Dispensed[0].Value)
	})

	t.Run("atm unavailable", func(t *testing.T) {
		w := postWithdrawal(t, router, "1", `{"account_number":"4111111111111111","atm_id":2,"amount":100}`)
		require.Equal(t, http.StatusNotFound, w.Code)

		var e apiError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		require.Equal(t, "atm_unavailable", e.Error.Kind)
	})

	t.Run("account not found", func(t *testing.T) {
		w := postWithdrawal(t, router, "1", `{"account_number":"0000000000000000","atm_id":1,"amount":100}`)
		require.Equal(t, http.StatusNotFound, w.Code)

		var e apiError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		require.Equal(t, "account_not_found", e.Error.Kind)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		w := postWithdrawal(t, router, "1", `{"account_number":"4111111111111111","atm_id":1,"amount":999990}`)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var e apiError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		require.Equal(t, "insufficient_funds", e.Error.Kind)
	})

	t.Run("bad request", func(t *testing.T) {
		w := postWithdrawal(t, router, "1", `{"account_number":"4111111111111111","atm_id":1,"amount":-5}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = postWithdrawal(t, router, "1", `{"atm_id":1,"amount":100}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = postWithdrawal(t, router, "x", `{"account_number":"4111111111111111","atm_id":1,"amount":100}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWithdrawalsEndpoint_FallbackPayload(t *testing.T) {
	repo := seedBase(t)
	seedAccount(t, repo, 5000, true)
	seedStock(t, repo, 1, map[int64]int64{200: 1, 50: 1})
	router := newTestRouter(t, repo)

	w := postWithdrawal(t, router, "1", `{"account_number":"4111111111111111","atm_id":1,"amount":300}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	require.Equal(t, "not_dispensable", e.Error.Kind)
	require.NotNil(t, e.Error.FallbackAmount)
	require.Equal(t, int64(250), *e.Error.FallbackAmount)
}

func TestBalancesEndpoints(t *testing.T) {
	repo := seedBase(t)
	require.NoError(t, repo.CreateConversionRate(models.ConversionRate{Code: "USD", Indicator: "*", Rate: decimal.RequireFromString("18.25")}))
	seedAccount(t, repo, 5000, true)
	require.NoError(t, repo.CreateAccount(&models.Account{
		ID: "acc-2", ClientID: 1, AccountNumber: "6011000990139424",
		TypeCode: "CFCA", Currency: "USD", Balance: 800,
	}))
	router := newTestRouter(t, repo)

	t.Run("transactional", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/clients/1/balances/transactional", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var result models.BalanceResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Len(t, result.Accounts, 1)
		require.Equal(t, "4111111111111111", result.Accounts[0].AccountNumber)
	})

	t.Run("currency", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/clients/1/balances/currency", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var result models.BalanceResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Len(t, result.Accounts, 1)
		require.Equal(t, "USD", result.Accounts[0].Currency)
	})

	t.Run("no accounts", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/clients/42/balances/transactional", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)

		var e apiError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		require.Equal(t, "no_accounts", e.Error.Kind)
	})
}
