// Package commission computes the platform/seller split of an order line.
// The rate has a single source of truth: the settlement engine's config.
package commission

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRate is the platform's cut when no rate is configured.
const DefaultRate = 0.15

var ErrInvalidInput = errors.New("invalid commission input")

// Split returns the platform commission and the seller amount for a total.
// The commission is rounded to cents; the seller amount is the remainder by
// subtraction, so commission + sellerAmount always equals total exactly.
func Split(total, rate float64) (commission, sellerAmount float64, err error) {
	if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
		return 0, 0, fmt.Errorf("%w: total %v", ErrInvalidInput, total)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 || rate > 1 {
		return 0, 0, fmt.Errorf("%w: rate %v", ErrInvalidInput, rate)
	}
	commission = math.Round(total*rate*100) / 100
	return commission, total - commission, nil
}
