// Package earnings aggregates the platform owner's balance: order
// commissions plus active listing-subscription revenue minus withdrawals.
package earnings

import (
	"errors"
	"math"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/store"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

type Ledger struct {
	Store *store.Store
}

// Summary mirrors the owner-earnings payload of the original API.
type Summary struct {
	TotalCommissions    float64 `json:"total_commissions"`
	SubscriptionRevenue float64 `json:"subscription_revenue"`
	TotalWithdrawals    float64 `json:"total_withdrawals"`
	AvailableBalance    float64 `json:"available_balance"`
}

type tableReader interface {
	GetAll(table string) ([]store.Record, error)
}

// Summary computes the current totals. Reading twice without intervening
// writes yields identical results.
func (l *Ledger) Summary() (Summary, error) {
	return summarize(l.Store)
}

func summarize(r tableReader) (Summary, error) {
	var s Summary

	orders, err := r.GetAll(models.TableOrders)
	if err != nil {
		return Summary{}, err
	}
	for _, rec := range orders {
		var o models.Order
		if err := models.FromRecord(rec, &o); err == nil {
			s.TotalCommissions += o.Commission
		}
	}

	subs, err := r.GetAll(models.TableSubscriptions)
	if err != nil {
		return Summary{}, err
	}
	for _, rec := range subs {
		var sub models.Subscription
		if err := models.FromRecord(rec, &sub); err == nil && sub.Status == models.SubActive {
			s.SubscriptionRevenue += sub.Amount
		}
	}

	withdrawals, err := r.GetAll(models.TableWithdrawals)
	if err != nil {
		return Summary{}, err
	}
	for _, rec := range withdrawals {
		var w models.Withdrawal
		if err := models.FromRecord(rec, &w); err == nil {
			s.TotalWithdrawals += w.Amount
		}
	}

	s.TotalCommissions = round2(s.TotalCommissions)
	s.SubscriptionRevenue = round2(s.SubscriptionRevenue)
	s.TotalWithdrawals = round2(s.TotalWithdrawals)
	s.AvailableBalance = round2(s.TotalCommissions + s.SubscriptionRevenue - s.TotalWithdrawals)
	return s, nil
}

// Withdraw appends a withdrawal for an admin requestor and returns the
// record together with the remaining balance. The balance check and the
// ledger append happen in one transaction.
func (l *Ledger) Withdraw(amount float64, requestor models.User) (models.Withdrawal, float64, error) {
	if requestor.Role != models.RoleAdmin {
		return models.Withdrawal{}, 0, ErrUnauthorized
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.Withdrawal{}, 0, ErrInvalidAmount
	}

	var (
		w       models.Withdrawal
		balance float64
	)
	err := l.Store.Mutate(func(tx *store.Tx) error {
		summary, err := summarize(tx)
		if err != nil {
			return err
		}
		if amount > summary.AvailableBalance {
			return ErrInsufficientBalance
		}

		w = models.Withdrawal{
			AdminID: requestor.ID,
			Amount:  amount,
			Status:  "completed",
		}
		rec, err := models.ToRecord(w)
		if err != nil {
			return err
		}
		created, err := tx.Create(models.TableWithdrawals, rec)
		if err != nil {
			return err
		}
		balance = round2(summary.AvailableBalance - amount)
		return models.FromRecord(created, &w)
	})
	if err != nil {
		return models.Withdrawal{}, 0, err
	}
	return w, balance, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
