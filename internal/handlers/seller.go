package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/millomarket/marketplace/internal/logging"
	"github.com/millomarket/marketplace/internal/middleware/auth"
	cachemw "github.com/millomarket/marketplace/internal/middleware/cache"
	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/search"
	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/subscription"
)

// SellerHandler covers everything a seller does with their own listings:
// creating products (which opens a listing subscription), maintaining them,
// submitting the listing-fee transfer and working incoming orders.
type SellerHandler struct {
	Store *store.Store
	Subs  *subscription.Ledger
	Index *search.Index
	Cache *redis.Client
}

// sellerProductPatch lists the fields a seller may change on their product.
// Status, subscription and ownership fields only move through the
// subscription ledger.
var sellerProductPatch = map[string]bool{
	"name":        true,
	"description": true,
	"price":       true,
	"colors":      true,
	"images":      true,
	"image_url":   true,
	"category":    true,
	"stock":       true,
}

func (h *SellerHandler) CreateProduct(c echo.Context) error {
	sellerID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	var product models.Product
	if err := c.Bind(&product); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if product.Name == "" || product.Price <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name and positive price required")
	}
	if product.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
	}

	product, sub, err := h.Subs.CreateListing(sellerID, product)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}

	logging.FromContext(c.Request().Context()).Info("listing created",
		"product_id", product.ID, "seller_id", sellerID, "subscription_id", sub.ID)
	return c.JSON(http.StatusCreated, map[string]any{
		"product":      product,
		"subscription": sub,
	})
}

func (h *SellerHandler) ListProducts(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	recs, err := h.Store.FindBy(models.TableProducts, map[string]any{"seller_id": string(sellerID)})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	products := make([]models.Product, 0, len(recs))
	for _, rec := range recs {
		var p models.Product
		if err := models.FromRecord(rec, &p); err == nil {
			products = append(products, p)
		}
	}
	return c.JSON(http.StatusOK, products)
}

func (h *SellerHandler) UpdateProduct(c echo.Context) error {
	product, err := h.ownProduct(c)
	if err != nil {
		return err
	}

	var patch store.Record
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	for field := range patch {
		if !sellerProductPatch[field] {
			delete(patch, field)
		}
	}
	if stock, ok := patch["stock"].(float64); ok && stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
	}

	updated, err := h.Store.Update(models.TableProducts, string(product.ID), patch)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	if err := models.FromRecord(updated, &product); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.refreshCatalog(c.Request().Context(), product)
	return c.JSON(http.StatusOK, product)
}

func (h *SellerHandler) DeleteProduct(c echo.Context) error {
	product, err := h.ownProduct(c)
	if err != nil {
		return err
	}

	err = h.Store.Mutate(func(tx *store.Tx) error {
		if _, err := tx.Delete(models.TableProducts, string(product.ID)); err != nil {
			return err
		}
		subs, err := tx.Find(models.TableSubscriptions, func(r store.Record) bool {
			return r["product_id"] == string(product.ID)
		})
		if err != nil {
			return err
		}
		for _, rec := range subs {
			status, _ := rec["status"].(string)
			if !models.SubscriptionStatus(status).CanTransition(models.SubCancelled) {
				continue
			}
			id, _ := rec["id"].(string)
			if _, err := tx.Update(models.TableSubscriptions, id, store.Record{
				"status": models.SubCancelled,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}

	l := logging.FromContext(c.Request().Context())
	if err := h.Index.DeleteProduct(c.Request().Context(), product.ID); err != nil && !errors.Is(err, search.ErrDisabled) {
		l.Warn("product deindex failed", "product_id", product.ID, "error", err)
	}
	cachemw.Invalidate(h.Cache)

	l.Info("listing deleted", "product_id", product.ID)
	return c.JSON(http.StatusOK, Response{Status: "ok", Message: "Product deleted"})
}

func (h *SellerHandler) ListOrders(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	recs, err := h.Store.FindBy(models.TableOrders, map[string]any{"seller_id": string(sellerID)})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	orders := make([]models.Order, 0, len(recs))
	for _, rec := range recs {
		var o models.Order
		if err := models.FromRecord(rec, &o); err == nil {
			orders = append(orders, o)
		}
	}
	return c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus moves one of the seller's orders forward through the
// fulfillment progression. Backward moves are rejected.
func (h *SellerHandler) UpdateOrderStatus(c echo.Context) error {
	sellerID, _ := auth.UserID(c)

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status required")
	}

	var order models.Order
	err := h.Store.Mutate(func(tx *store.Tx) error {
		rec, err := tx.GetByID(models.TableOrders, c.Param("id"))
		if err != nil {
			return err
		}
		if err := models.FromRecord(rec, &order); err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return errForbidden
		}
		if !order.Status.CanTransition(req.Status) {
			return echo.NewHTTPError(http.StatusConflict,
				"cannot move order from "+string(order.Status)+" to "+string(req.Status))
		}
		updated, err := tx.Update(models.TableOrders, string(order.ID), store.Record{
			"status": req.Status,
		})
		if err != nil {
			return err
		}
		return models.FromRecord(updated, &order)
	})
	if err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return he
		}
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *SellerHandler) ListSubscriptions(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	recs, err := h.Store.FindBy(models.TableSubscriptions, map[string]any{"seller_id": string(sellerID)})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	subs := make([]models.Subscription, 0, len(recs))
	for _, rec := range recs {
		var s models.Subscription
		if err := models.FromRecord(rec, &s); err == nil {
			subs = append(subs, s)
		}
	}
	return c.JSON(http.StatusOK, subs)
}

// CancelSubscription ends one of the seller's listing subscriptions and
// takes the product off the catalog.
func (h *SellerHandler) CancelSubscription(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	id := models.SubscriptionID(c.Param("id"))

	sub, err := models.SubscriptionByID(h.Store, id)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	if sub.SellerID != sellerID {
		return errForbidden
	}

	sub, err = h.Subs.Cancel(id)
	if err != nil {
		if errors.Is(err, subscription.ErrTransition) {
			return errorResponse(c, http.StatusConflict, err)
		}
		return errorResponse(c, storeStatus(err), err)
	}
	cachemw.Invalidate(h.Cache)
	return c.JSON(http.StatusOK, sub)
}

// SubmitEtransfer records the seller's listing-fee transfer for admin
// review. The listing stays pending until an admin approves it.
func (h *SellerHandler) SubmitEtransfer(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	email, _ := c.Get("email").(string)

	var req struct {
		ProductID       models.ProductID `json:"product_id"`
		ReferenceNumber string           `json:"reference_number"`
		Amount          float64          `json:"amount"`
		TransferDate    string           `json:"transfer_date"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id required")
	}

	product, err := models.ProductByID(h.Store, req.ProductID)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	if product.SellerID != sellerID {
		return errForbidden
	}

	payment, err := h.Subs.SubmitPayment(models.EtransferPayment{
		SellerID:        sellerID,
		SellerEmail:     email,
		ProductID:       product.ID,
		ProductName:     product.Name,
		ReferenceNumber: req.ReferenceNumber,
		Amount:          req.Amount,
		TransferDate:    req.TransferDate,
	})
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusCreated, payment)
}

func (h *SellerHandler) ListEtransfers(c echo.Context) error {
	sellerID, _ := auth.UserID(c)
	recs, err := h.Store.FindBy(models.TableEtransfers, map[string]any{"seller_id": string(sellerID)})
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

// ownProduct loads the product from the path and checks the caller owns it.
func (h *SellerHandler) ownProduct(c echo.Context) (models.Product, error) {
	sellerID, ok := auth.UserID(c)
	if !ok {
		return models.Product{}, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	product, err := models.ProductByID(h.Store, models.ProductID(c.Param("id")))
	if err != nil {
		return models.Product{}, echo.NewHTTPError(storeStatus(err), err.Error())
	}
	if product.SellerID != sellerID {
		return models.Product{}, errForbidden
	}
	return product, nil
}

// refreshCatalog keeps the search index and the response cache in step with
// a catalog change. Both are best-effort.
func (h *SellerHandler) refreshCatalog(ctx context.Context, product models.Product) {
	if product.Visible() {
		if err := h.Index.IndexProduct(ctx, product); err != nil && !errors.Is(err, search.ErrDisabled) {
			logging.FromContext(ctx).Warn("product reindex failed", "product_id", product.ID, "error", err)
		}
	}
	cachemw.Invalidate(h.Cache)
}
