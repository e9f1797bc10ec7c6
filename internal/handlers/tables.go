package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/util"
)

// TablesHandler exposes the generic record-store CRUD the admin dashboard
// is built on. It is admin-gated; the public catalog has its own routes.
type TablesHandler struct {
	Store *store.Store
}

func (h *TablesHandler) List(c echo.Context) error {
	table := c.Param("table")

	data, err := h.Store.GetAll(table)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}

	limit := parseIntDefault(c.QueryParam("limit"), 100)
	offset := parseIntDefault(c.QueryParam("offset"), 0)
	start, end := util.Window(limit, offset, len(data))

	return c.JSON(http.StatusOK, map[string]any{
		"data":   data[start:end],
		"total":  len(data),
		"limit":  limit,
		"offset": offset,
	})
}

func (h *TablesHandler) Get(c echo.Context) error {
	rec, err := h.Store.GetByID(c.Param("table"), c.Param("id"))
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *TablesHandler) Create(c echo.Context) error {
	var rec store.Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	created, err := h.Store.Create(c.Param("table"), rec)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Update serves both PUT and PATCH: fields are merged into the record,
// id and created_at always survive.
func (h *TablesHandler) Update(c echo.Context) error {
	var patch store.Record
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	updated, err := h.Store.Update(c.Param("table"), c.Param("id"), patch)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *TablesHandler) Delete(c echo.Context) error {
	deleted, err := h.Store.Delete(c.Param("table"), c.Param("id"))
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Record deleted",
		"data":    deleted,
	})
}
