// Package fx converts account balances to ZAR using the conversion-rate
// reference table. A rate row carries an indicator telling whether the
// stored rate multiplies or divides.
package fx

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency converts to itself with a multiplier of one.
const BaseCurrency = "ZAR"

// divisionScale is the precision used when inverting a "/" rate.
const divisionScale = 8

// Rate is one row of the conversion-rate table.
type Rate struct {
	Code      string
	Indicator string
	Rate      decimal.Decimal
}

// Multiplier returns the factor that converts one unit of the rate's
// currency to ZAR.
func Multiplier(r Rate) (decimal.Decimal, error) {
	if strings.EqualFold(r.Code, BaseCurrency) {
		return decimal.NewFromInt(1), nil
	}

	switch r.Indicator {
	case "*":
		return r.Rate, nil
	case "/":
		if r.Rate.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("zero rate for %s", r.Code)
		}
		return decimal.NewFromInt(1).DivRound(r.Rate, divisionScale), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("invalid conversion indicator %q for %s", r.Indicator, r.Code)
	}
}
