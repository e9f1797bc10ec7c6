// Package settlement turns a paid cart into durable order records and stock
// updates. The whole cart settles inside one store transaction: every line
// is validated before any line commits, so there is no partial fulfillment
// and no oversell under concurrent checkouts.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/millomarket/marketplace/internal/commission"
	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/notify"
	"github.com/millomarket/marketplace/internal/store"
)

var (
	// ErrRejected is returned when one or more cart lines failed
	// validation. The Result carries the per-line reasons.
	ErrRejected = errors.New("settlement rejected")

	ErrEmptyCart = errors.New("empty cart")
)

// Line is one cart entry to settle.
type Line struct {
	ProductID models.ProductID `json:"product_id"`
	Color     string           `json:"color"`
	Quantity  int              `json:"quantity"`
}

// Buyer identifies the customer placing the order.
type Buyer struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	ShippingAddress string `json:"shipping_address"`
}

// PaymentRef is the opaque proof of payment handed over by the gateway
// integration. Settlement stores it, it never talks to the gateway itself.
type PaymentRef struct {
	IntentID string `json:"payment_intent_id"`
	Status   string `json:"status"`
}

// Captured reports whether money already moved for this reference.
func (p PaymentRef) Captured() bool {
	return p.Status == "succeeded" || p.Status == "paid"
}

// LineFailure describes why a single cart line was rejected.
type LineFailure struct {
	Index     int              `json:"index"`
	ProductID models.ProductID `json:"product_id"`
	Reason    string           `json:"reason"`
}

// Result is the outcome of settling one cart. On success Orders holds one
// order per line; on rejection Failures names every bad line and no order
// was created.
type Result struct {
	Orders   []models.Order `json:"orders,omitempty"`
	Failures []LineFailure  `json:"failures,omitempty"`
}

// Indexer re-indexes products whose stock changed. Optional and best-effort.
type Indexer interface {
	IndexProduct(ctx context.Context, p models.Product) error
}

type Engine struct {
	Store    *store.Store
	Notifier notify.Notifier
	Indexer  Indexer
	Rate     float64
	Log      *slog.Logger
}

func NewEngine(s *store.Store, n notify.Notifier, rate float64, log *slog.Logger) *Engine {
	if n == nil {
		n = notify.Noop{}
	}
	if rate == 0 {
		rate = commission.DefaultRate
	}
	return &Engine{Store: s, Notifier: n, Rate: rate, Log: log}
}

// Settle validates and commits a cart as one atomic unit. Validation
// failures return ErrRejected with per-line reasons; if the payment was
// already captured, any failure also records a payment fault so the charge
// can be reconciled by hand.
func (e *Engine) Settle(ctx context.Context, lines []Line, buyer Buyer, pay PaymentRef) (Result, error) {
	if len(lines) == 0 {
		return Result{}, ErrEmptyCart
	}

	var (
		result   Result
		products []models.Product
	)
	err := e.Store.Mutate(func(tx *store.Tx) error {
		failures := e.validate(tx, lines)
		if len(failures) > 0 {
			result.Failures = failures
			return ErrRejected
		}

		for _, line := range lines {
			product, err := models.ProductTx(tx, line.ProductID)
			if err != nil {
				return err
			}

			total := round2(product.Price * float64(line.Quantity))
			fee, sellerAmount, err := commission.Split(total, e.Rate)
			if err != nil {
				return err
			}

			order := models.Order{
				CustomerEmail:   buyer.Email,
				CustomerName:    buyer.Name,
				ProductID:       product.ID,
				ProductName:     product.Name,
				Color:           line.Color,
				Quantity:        line.Quantity,
				Price:           product.Price,
				Total:           total,
				SellerID:        product.SellerID,
				Commission:      fee,
				SellerAmount:    sellerAmount,
				Status:          models.OrderPending,
				ShippingAddress: buyer.ShippingAddress,
				PaymentIntentID: pay.IntentID,
				PaymentStatus:   pay.Status,
			}
			rec, err := models.ToRecord(order)
			if err != nil {
				return err
			}
			created, err := tx.Create(models.TableOrders, rec)
			if err != nil {
				return err
			}
			if err := models.FromRecord(created, &order); err != nil {
				return err
			}

			if _, err := tx.Update(models.TableProducts, string(product.ID), store.Record{
				"stock": product.Stock - line.Quantity,
			}); err != nil {
				return err
			}
			product.Stock -= line.Quantity

			result.Orders = append(result.Orders, order)
			products = append(products, product)
		}
		return nil
	})
	if err != nil {
		if pay.Captured() {
			e.recordFault(buyer, pay, err)
		}
		return result, err
	}

	// Post-commit side effects, never part of the settlement outcome.
	for _, order := range result.Orders {
		if err := e.Notifier.OrderCreated(ctx, order); err != nil {
			e.log().Warn("order notification failed", "order_id", order.ID, "error", err)
		}
	}
	if e.Indexer != nil {
		for _, p := range products {
			if err := e.Indexer.IndexProduct(ctx, p); err != nil {
				e.log().Warn("product reindex failed", "product_id", p.ID, "error", err)
			}
		}
	}
	return result, nil
}

// validate checks every line against the transaction's view of the catalog,
// accounting for quantity claimed by earlier lines of the same cart.
func (e *Engine) validate(tx *store.Tx, lines []Line) []LineFailure {
	var failures []LineFailure
	claimed := make(map[models.ProductID]int)

	for i, line := range lines {
		fail := func(reason string) {
			failures = append(failures, LineFailure{Index: i, ProductID: line.ProductID, Reason: reason})
		}

		if line.Quantity <= 0 {
			fail("quantity must be positive")
			continue
		}
		product, err := models.ProductTx(tx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fail("product not found")
			} else {
				fail(err.Error())
			}
			continue
		}
		if !product.Visible() {
			fail("product not available")
			continue
		}
		if line.Color != "" && !product.HasColor(line.Color) {
			fail(fmt.Sprintf("color %q not offered", line.Color))
			continue
		}
		if claimed[line.ProductID]+line.Quantity > product.Stock {
			fail(fmt.Sprintf("insufficient stock: requested %d, available %d",
				claimed[line.ProductID]+line.Quantity, product.Stock))
			continue
		}
		claimed[line.ProductID] += line.Quantity
	}
	return failures
}

// recordFault stores a "payment captured, order not created" marker for
// manual reconciliation. Best-effort: a second failure is only logged.
func (e *Engine) recordFault(buyer Buyer, pay PaymentRef, cause error) {
	fault := models.PaymentFault{
		PaymentRef:    pay.IntentID,
		CustomerEmail: buyer.Email,
		Detail:        cause.Error(),
	}
	rec, err := models.ToRecord(fault)
	if err == nil {
		_, err = e.Store.Create(models.TablePaymentFaults, rec)
	}
	if err != nil {
		e.log().Error("failed to record payment fault", "payment_ref", pay.IntentID, "error", err)
	}
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
