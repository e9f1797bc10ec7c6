package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/millomarket/marketplace/internal/earnings"
	"github.com/millomarket/marketplace/internal/logging"
	"github.com/millomarket/marketplace/internal/middleware/auth"
	cachemw "github.com/millomarket/marketplace/internal/middleware/cache"
	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/search"
	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/subscription"
)

// AdminHandler is the platform owner's surface: e-transfer review, the
// earnings ledger and withdrawals. Routes mounting it are admin-gated.
type AdminHandler struct {
	Store    *store.Store
	Subs     *subscription.Ledger
	Earnings *earnings.Ledger
	Index    *search.Index
	Cache    *redis.Client
}

func (h *AdminHandler) ListEtransfers(c echo.Context) error {
	status := c.QueryParam("status")
	recs, err := h.Store.Find(models.TableEtransfers, func(r store.Record) bool {
		return status == "" || r["status"] == status
	})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	payments := make([]models.EtransferPayment, 0, len(recs))
	for _, rec := range recs {
		var p models.EtransferPayment
		if err := models.FromRecord(rec, &p); err == nil {
			payments = append(payments, p)
		}
	}
	return c.JSON(http.StatusOK, payments)
}

// ApproveEtransfer confirms a listing-fee transfer, which activates the
// subscription and puts the product on the catalog.
func (h *AdminHandler) ApproveEtransfer(c echo.Context) error {
	adminID, _ := auth.UserID(c)
	id := models.PaymentID(c.Param("id"))

	payment, sub, err := h.Subs.ApprovePayment(id, adminID)
	if err != nil {
		if errors.Is(err, subscription.ErrPaymentReviewed) {
			return errorResponse(c, http.StatusConflict, err)
		}
		return errorResponse(c, storeStatus(err), err)
	}

	ctx := c.Request().Context()
	l := logging.FromContext(ctx)
	if product, perr := models.ProductByID(h.Store, payment.ProductID); perr == nil {
		if ierr := h.Index.IndexProduct(ctx, product); ierr != nil && !errors.Is(ierr, search.ErrDisabled) {
			l.Warn("product index failed", "product_id", product.ID, "error", ierr)
		}
	}
	cachemw.Invalidate(h.Cache)

	l.Info("etransfer approved", "payment_id", payment.ID, "subscription_id", sub.ID, "admin_id", adminID)
	return c.JSON(http.StatusOK, map[string]any{
		"payment":      payment,
		"subscription": sub,
	})
}

// RejectEtransfer declines a transfer and removes the pending listing.
func (h *AdminHandler) RejectEtransfer(c echo.Context) error {
	adminID, _ := auth.UserID(c)
	id := models.PaymentID(c.Param("id"))

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)

	payment, err := h.Subs.RejectPayment(id, adminID, req.Reason)
	if err != nil {
		if errors.Is(err, subscription.ErrPaymentReviewed) {
			return errorResponse(c, http.StatusConflict, err)
		}
		return errorResponse(c, storeStatus(err), err)
	}

	ctx := c.Request().Context()
	l := logging.FromContext(ctx)
	if derr := h.Index.DeleteProduct(ctx, payment.ProductID); derr != nil && !errors.Is(derr, search.ErrDisabled) {
		l.Warn("product deindex failed", "product_id", payment.ProductID, "error", derr)
	}
	cachemw.Invalidate(h.Cache)

	l.Info("etransfer rejected", "payment_id", payment.ID, "admin_id", adminID)
	return c.JSON(http.StatusOK, payment)
}

// Backup streams the raw store document as a download for the admin
// dashboard. The file on disk is always a complete snapshot thanks to the
// store's atomic rename on every flush.
func (h *AdminHandler) Backup(c echo.Context) error {
	name := "marketplace-backup-" + time.Now().UTC().Format("2006-01-02") + ".json"
	return c.Attachment(h.Store.Path(), name)
}

func (h *AdminHandler) EarningsSummary(c echo.Context) error {
	summary, err := h.Earnings.Summary()
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Withdraw pays out part of the owner's available balance. The balance
// check and the withdrawal record share one store transaction.
func (h *AdminHandler) Withdraw(c echo.Context) error {
	adminID, _ := auth.UserID(c)

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	requestor, err := models.UserByID(h.Store, adminID)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}

	withdrawal, balance, err := h.Earnings.Withdraw(req.Amount, requestor)
	switch {
	case errors.Is(err, earnings.ErrUnauthorized):
		return errorResponse(c, http.StatusForbidden, err)
	case errors.Is(err, earnings.ErrInvalidAmount):
		return errorResponse(c, http.StatusBadRequest, err)
	case errors.Is(err, earnings.ErrInsufficientBalance):
		return errorResponse(c, http.StatusBadRequest, err)
	case err != nil:
		return errorResponse(c, storeStatus(err), err)
	}

	logging.FromContext(c.Request().Context()).Info("withdrawal recorded",
		"withdrawal_id", withdrawal.ID, "amount", withdrawal.Amount, "admin_id", adminID)
	return c.JSON(http.StatusCreated, map[string]any{
		"withdrawal":        withdrawal,
		"available_balance": balance,
	})
}
