package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/util"
)

// CatalogHandler serves the public storefront. Only products whose listing
// fee is paid up show here (status active AND subscription_status active).
type CatalogHandler struct {
	Store *store.Store
}

func (h *CatalogHandler) visibleProducts(category string) ([]models.Product, error) {
	recs, err := h.Store.GetAll(models.TableProducts)
	if err != nil {
		return nil, err
	}
	products := make([]models.Product, 0, len(recs))
	for _, rec := range recs {
		var p models.Product
		if err := models.FromRecord(rec, &p); err != nil {
			continue
		}
		if !p.Visible() {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (h *CatalogHandler) ListProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	products, err := h.visibleProducts(c.QueryParam("category"))
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}

	total := len(products)
	start, end := util.Window(limit, offset, total)

	return c.JSON(http.StatusOK, map[string]any{
		"data": products[start:end],
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + limit - 1) / limit,
			"has_prev":    page > 1,
			"has_next":    end < total,
		},
	})
}

func (h *CatalogHandler) GetProduct(c echo.Context) error {
	p, err := models.ProductByID(h.Store, models.ProductID(c.Param("id")))
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	if !p.Visible() {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}
	return c.JSON(http.StatusOK, p)
}
