package models

import (
	"github.com/millomarket/marketplace/internal/store"
)

// Lookup helpers over the record store. Every reference between tables is a
// typed id, so joins always go through these instead of ad-hoc string keys.

func UserByID(s *store.Store, id UserID) (User, error) {
	rec, err := s.GetByID(TableUsers, string(id))
	if err != nil {
		return User{}, err
	}
	var u User
	return u, FromRecord(rec, &u)
}

func UserByEmail(s *store.Store, email string) (User, bool, error) {
	recs, err := s.FindBy(TableUsers, map[string]any{"email": email})
	if err != nil {
		return User{}, false, err
	}
	if len(recs) == 0 {
		return User{}, false, nil
	}
	var u User
	return u, true, FromRecord(recs[0], &u)
}

func ProductByID(s *store.Store, id ProductID) (Product, error) {
	rec, err := s.GetByID(TableProducts, string(id))
	if err != nil {
		return Product{}, err
	}
	var p Product
	return p, FromRecord(rec, &p)
}

func SubscriptionByID(s *store.Store, id SubscriptionID) (Subscription, error) {
	rec, err := s.GetByID(TableSubscriptions, string(id))
	if err != nil {
		return Subscription{}, err
	}
	var sub Subscription
	return sub, FromRecord(rec, &sub)
}

// Tx variants for use inside store transactions.

func ProductTx(tx *store.Tx, id ProductID) (Product, error) {
	rec, err := tx.GetByID(TableProducts, string(id))
	if err != nil {
		return Product{}, err
	}
	var p Product
	return p, FromRecord(rec, &p)
}

func SubscriptionTx(tx *store.Tx, id SubscriptionID) (Subscription, error) {
	rec, err := tx.GetByID(TableSubscriptions, string(id))
	if err != nil {
		return Subscription{}, err
	}
	var sub Subscription
	return sub, FromRecord(rec, &sub)
}

func EtransferTx(tx *store.Tx, id PaymentID) (EtransferPayment, error) {
	rec, err := tx.GetByID(TableEtransfers, string(id))
	if err != nil {
		return EtransferPayment{}, err
	}
	var p EtransferPayment
	return p, FromRecord(rec, &p)
}
