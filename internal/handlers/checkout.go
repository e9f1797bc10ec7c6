package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/millomarket/marketplace/internal/logging"
	cachemw "github.com/millomarket/marketplace/internal/middleware/cache"
	"github.com/millomarket/marketplace/internal/settlement"
)

// CheckoutHandler settles paid carts. Payment capture happens on the
// client side; this endpoint receives the proof of payment and turns the
// cart into orders atomically.
type CheckoutHandler struct {
	Engine *settlement.Engine
	Cache  *redis.Client
}

type checkoutRequest struct {
	Items    []settlement.Line     `json:"items"`
	Customer settlement.Buyer      `json:"customer"`
	Payment  settlement.PaymentRef `json:"payment"`
}

func (h *CheckoutHandler) Checkout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Customer.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer email required")
	}

	result, err := h.Engine.Settle(c.Request().Context(), req.Items, req.Customer, req.Payment)
	switch {
	case errors.Is(err, settlement.ErrEmptyCart):
		return errorResponse(c, http.StatusBadRequest, err)
	case errors.Is(err, settlement.ErrRejected):
		return c.JSON(http.StatusConflict, map[string]any{
			"status":   "rejected",
			"failures": result.Failures,
		})
	case err != nil:
		return errorResponse(c, storeStatus(err), err)
	}

	// Stock moved, cached catalog pages are stale.
	cachemw.Invalidate(h.Cache)

	logging.FromContext(c.Request().Context()).Info("cart settled",
		"orders", len(result.Orders), "customer", req.Customer.Email)
	return c.JSON(http.StatusCreated, map[string]any{
		"status": "ok",
		"orders": result.Orders,
	})
}
