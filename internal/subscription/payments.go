package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/store"
)

// The e-transfer manual-review flow is the authoritative activation path:
// a listing goes live only when an admin approves the seller's transfer.

var ErrPaymentReviewed = errors.New("payment already reviewed")

// SubmitPayment records a seller's pending listing-fee transfer.
func (l *Ledger) SubmitPayment(p models.EtransferPayment) (models.EtransferPayment, error) {
	if p.Amount == 0 {
		p.Amount = l.Fee
	}
	if p.Currency == "" {
		p.Currency = "CAD"
	}
	if p.TransferDate == "" {
		p.TransferDate = l.nowUTC().Format(time.RFC3339)
	}
	p.Status = models.PaymentPending

	rec, err := models.ToRecord(p)
	if err != nil {
		return models.EtransferPayment{}, err
	}
	created, err := l.Store.Create(models.TableEtransfers, rec)
	if err != nil {
		return models.EtransferPayment{}, err
	}
	return p, models.FromRecord(created, &p)
}

// ApprovePayment marks a pending transfer approved, activates the listing
// subscription for its product and makes the product visible, all in one
// transaction.
func (l *Ledger) ApprovePayment(id models.PaymentID, adminID models.UserID) (models.EtransferPayment, models.Subscription, error) {
	now := l.nowUTC()
	var (
		payment models.EtransferPayment
		sub     models.Subscription
	)
	err := l.Store.Mutate(func(tx *store.Tx) error {
		var err error
		payment, err = models.EtransferTx(tx, id)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			return fmt.Errorf("%w: %s", ErrPaymentReviewed, payment.Status)
		}

		updated, err := tx.Update(models.TableEtransfers, string(id), store.Record{
			"status":      models.PaymentApproved,
			"approved_at": now.Format(time.RFC3339),
			"approved_by": adminID,
		})
		if err != nil {
			return err
		}
		if err := models.FromRecord(updated, &payment); err != nil {
			return err
		}

		subID, err := l.subscriptionForProduct(tx, payment.ProductID)
		if err != nil {
			return err
		}
		sub, err = transitionTx(tx, subID, models.SubActive, store.Record{
			"status":              models.ProductActive,
			"subscription_status": models.SubActive,
			"payment_confirmed":   true,
		}, store.Record{
			"payment_method":       "etransfer",
			"etransfer_payment_id": payment.ID,
			"next_billing_date":    now.Add(billingPeriod).Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return models.EtransferPayment{}, models.Subscription{}, err
	}
	return payment, sub, nil
}

// RejectPayment marks a pending transfer rejected and removes the pending
// product along with its subscription, as the original review flow did.
func (l *Ledger) RejectPayment(id models.PaymentID, adminID models.UserID, reason string) (models.EtransferPayment, error) {
	now := l.nowUTC()
	if reason == "" {
		reason = "Payment verification failed"
	}
	var payment models.EtransferPayment
	err := l.Store.Mutate(func(tx *store.Tx) error {
		var err error
		payment, err = models.EtransferTx(tx, id)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			return fmt.Errorf("%w: %s", ErrPaymentReviewed, payment.Status)
		}

		updated, err := tx.Update(models.TableEtransfers, string(id), store.Record{
			"status":           models.PaymentRejected,
			"rejected_at":      now.Format(time.RFC3339),
			"rejected_by":      adminID,
			"rejection_reason": reason,
		})
		if err != nil {
			return err
		}
		if err := models.FromRecord(updated, &payment); err != nil {
			return err
		}

		if subID, err := l.subscriptionForProduct(tx, payment.ProductID); err == nil {
			if _, err := tx.Update(models.TableSubscriptions, string(subID), store.Record{
				"status": models.SubCancelled,
			}); err != nil {
				return err
			}
		}
		if _, err := tx.Delete(models.TableProducts, string(payment.ProductID)); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.EtransferPayment{}, err
	}
	return payment, nil
}

// subscriptionForProduct finds the payable subscription of a product.
func (l *Ledger) subscriptionForProduct(tx *store.Tx, productID models.ProductID) (models.SubscriptionID, error) {
	recs, err := tx.Find(models.TableSubscriptions, func(r store.Record) bool {
		if r["product_id"] != string(productID) {
			return false
		}
		status, _ := r["status"].(string)
		s := models.SubscriptionStatus(status)
		return s == models.SubPending || s == models.SubPastDue
	})
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", fmt.Errorf("%w: subscriptions for product %s", store.ErrNotFound, productID)
	}
	id, _ := recs[0]["id"].(string)
	return models.SubscriptionID(id), nil
}
