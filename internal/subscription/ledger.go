// Package subscription tracks seller listing subscriptions, one per listed
// product. Every status transition updates the linked product in the same
// store transaction, so catalog visibility never lags subscription state.
package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/store"
)

// DefaultFee is the monthly listing fee when none is configured.
const DefaultFee = 25

// billingPeriod is the interval between listing-fee charges.
const billingPeriod = 30 * 24 * time.Hour

var ErrTransition = errors.New("invalid subscription transition")

type Ledger struct {
	Store *store.Store
	Fee   float64
	Log   *slog.Logger
	Now   func() time.Time
}

func NewLedger(s *store.Store, fee float64, log *slog.Logger) *Ledger {
	if fee == 0 {
		fee = DefaultFee
	}
	return &Ledger{Store: s, Fee: fee, Log: log, Now: time.Now}
}

func (l *Ledger) nowUTC() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateListing stores a new pending product together with its pending
// subscription. The product stays out of the public catalog until the
// listing fee is confirmed and Activate runs.
func (l *Ledger) CreateListing(sellerID models.UserID, product models.Product) (models.Product, models.Subscription, error) {
	now := l.nowUTC()
	product.SellerID = sellerID
	product.Status = models.ProductPending
	product.SubscriptionStatus = models.SubPending
	product.PaymentConfirmed = false

	var sub models.Subscription
	err := l.Store.Mutate(func(tx *store.Tx) error {
		rec, err := models.ToRecord(product)
		if err != nil {
			return err
		}
		created, err := tx.Create(models.TableProducts, rec)
		if err != nil {
			return err
		}
		if err := models.FromRecord(created, &product); err != nil {
			return err
		}

		sub = models.Subscription{
			SellerID:        sellerID,
			ProductID:       product.ID,
			Amount:          l.Fee,
			Currency:        "CAD",
			Status:          models.SubPending,
			StartDate:       now.Format(time.RFC3339),
			NextBillingDate: now.Add(billingPeriod).Format(time.RFC3339),
		}
		subRec, err := models.ToRecord(sub)
		if err != nil {
			return err
		}
		createdSub, err := tx.Create(models.TableSubscriptions, subRec)
		if err != nil {
			return err
		}
		return models.FromRecord(createdSub, &sub)
	})
	if err != nil {
		return models.Product{}, models.Subscription{}, err
	}
	return product, sub, nil
}

// Activate confirms payment for a pending (or late-paid past_due)
// subscription and makes the linked product publicly visible.
func (l *Ledger) Activate(id models.SubscriptionID) (models.Subscription, error) {
	now := l.nowUTC()
	return l.transition(id, models.SubActive, store.Record{
		"status":              models.ProductActive,
		"subscription_status": models.SubActive,
		"payment_confirmed":   true,
	}, store.Record{
		"next_billing_date": now.Add(billingPeriod).Format(time.RFC3339),
	})
}

// MarkPastDue flags a missed payment and hides the product.
func (l *Ledger) MarkPastDue(id models.SubscriptionID) (models.Subscription, error) {
	return l.transition(id, models.SubPastDue, store.Record{
		"status":              models.ProductInactive,
		"subscription_status": models.SubPastDue,
	}, nil)
}

// Cancel ends the subscription and deactivates the product.
func (l *Ledger) Cancel(id models.SubscriptionID) (models.Subscription, error) {
	return l.transition(id, models.SubCancelled, store.Record{
		"status":              models.ProductInactive,
		"subscription_status": models.SubCancelled,
	}, nil)
}

// Expire ends the subscription at the end of its term.
func (l *Ledger) Expire(id models.SubscriptionID) (models.Subscription, error) {
	return l.transition(id, models.SubExpired, store.Record{
		"status":              models.ProductInactive,
		"subscription_status": models.SubExpired,
	}, nil)
}

// transition applies a status change and the matching product patch in one
// transaction. subPatch carries extra subscription fields beyond status.
func (l *Ledger) transition(id models.SubscriptionID, next models.SubscriptionStatus, productPatch, subPatch store.Record) (models.Subscription, error) {
	var sub models.Subscription
	err := l.Store.Mutate(func(tx *store.Tx) error {
		var err error
		sub, err = transitionTx(tx, id, next, productPatch, subPatch)
		return err
	})
	if err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

// transitionTx is the transaction body of transition, shared with the
// payment-approval flow so approval stays a single store transaction.
func transitionTx(tx *store.Tx, id models.SubscriptionID, next models.SubscriptionStatus, productPatch, subPatch store.Record) (models.Subscription, error) {
	sub, err := models.SubscriptionTx(tx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if !sub.Status.CanTransition(next) {
		return models.Subscription{}, fmt.Errorf("%w: %s -> %s", ErrTransition, sub.Status, next)
	}

	patch := store.Record{"status": next}
	for k, v := range subPatch {
		patch[k] = v
	}
	updated, err := tx.Update(models.TableSubscriptions, string(id), patch)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := models.FromRecord(updated, &sub); err != nil {
		return models.Subscription{}, err
	}

	if _, err := tx.Update(models.TableProducts, string(sub.ProductID), productPatch); err != nil {
		// A subscription may outlive its product (admin force-delete).
		if !errors.Is(err, store.ErrNotFound) {
			return models.Subscription{}, err
		}
	}
	return sub, nil
}

// Sweep marks every active subscription whose billing date has passed as
// past_due and hides its product. Returns how many subscriptions moved.
func (l *Ledger) Sweep(now time.Time) (int, error) {
	recs, err := l.Store.FindBy(models.TableSubscriptions, map[string]any{"status": string(models.SubActive)})
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, rec := range recs {
		var sub models.Subscription
		if err := models.FromRecord(rec, &sub); err != nil {
			continue
		}
		due, err := time.Parse(time.RFC3339, sub.NextBillingDate)
		if err != nil || !due.Before(now) {
			continue
		}
		if _, err := l.MarkPastDue(sub.ID); err != nil {
			if l.Log != nil {
				l.Log.Warn("billing sweep transition failed", "subscription_id", sub.ID, "error", err)
			}
			continue
		}
		moved++
	}
	return moved, nil
}
