package notes

import (
	"errors"
	"sort"
)

// ErrNotDispensable means the stock cannot cover the amount exactly.
var ErrNotDispensable = errors.New("not dispensable")

// Bundle is one denomination bucket of an ATM cassette: a note face value
// and the quantity on hand.
type Bundle struct {
	Value    int64
	Quantity int64
}

// FallbackStep is the probe granularity used by SuggestFallback. Fixed at 10
// currency units; the suggestions surfaced to users depend on it.
const FallbackStep = 10

// Allocate picks notes to cover amount exactly, largest denomination first.
// For each bucket it takes min(quantity, remaining/value) notes; if a
// remainder is left after the smallest denomination, the amount is not
// dispensable and no plan is returned.
//
// The greedy walk can miss combinations a full coin-change search would
// find when the stock is fragmented. That behavior is intentional and the
// fallback probe is built around it; do not replace it with an optimal
// solver.
func Allocate(amount int64, stock []Bundle) (map[int64]int64, error) {
	if amount <= 0 {
		return nil, ErrNotDispensable
	}

	buckets := merge(stock)
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Value > buckets[j].Value
	})

	remaining := amount
	plan := make(map[int64]int64)

	for _, b := range buckets {
		if b.Value <= 0 || b.Quantity <= 0 {
			continue
		}
		use := remaining / b.Value
		if use > b.Quantity {
			use = b.Quantity
		}
		if use > 0 {
			plan[b.Value] = use
			remaining -= use * b.Value
		}
	}

	if remaining > 0 {
		return nil, ErrNotDispensable
	}

	return plan, nil
}

// SuggestFallback probes downward from amount-FallbackStep in fixed steps,
// re-running Allocate on the same stock, and returns the first amount that
// succeeds (which is also the highest). The second return is false when no
// amount in range is dispensable.
func SuggestFallback(amount int64, stock []Bundle) (int64, bool) {
	for candidate := amount - FallbackStep; candidate > 0; candidate -= FallbackStep {
		if _, err := Allocate(candidate, stock); err == nil {
			return candidate, true
		}
	}
	return 0, false
}

// merge folds equal-valued bundles into a single bucket; notes of one
// denomination are fungible.
func merge(stock []Bundle) []Bundle {
	byValue := make(map[int64]int64, len(stock))
	for _, b := range stock {
		byValue[b.Value] += b.Quantity
	}
	out := make([]Bundle, 0, len(byValue))
	for v, q := range byValue {
		out = append(out, Bundle{Value: v, Quantity: q})
	}
	return out
}
