package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/millomarket/marketplace/internal/hash"
	"github.com/millomarket/marketplace/internal/logging"
	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/token"
)

type AuthHandler struct {
	Store     *store.Store
	JWTSecret []byte
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.register")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password required")
	}
	if req.Role == "" {
		req.Role = models.RoleBuyer
	}
	if req.Role != models.RoleBuyer && req.Role != models.RoleSeller {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be buyer or seller")
	}

	_, exists, err := models.UserByEmail(h.Store, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if exists {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := models.User{
		Email:    req.Email,
		Password: hashed,
		FullName: req.FullName,
		Role:     req.Role,
		Status:   models.UserActive,
	}
	rec, err := models.ToRecord(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	created, err := h.Store.Create(models.TableUsers, rec)
	if err != nil {
		return errorResponse(c, storeStatus(err), err)
	}
	if err := models.FromRecord(created, &user); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	tok, err := token.Sign(user, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("user registered", "user_id", user.ID, "role", user.Role)
	return c.JSON(http.StatusCreated, authResponse{Token: tok, User: user.Sanitized()})
}

func (h *AuthHandler) Login(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, exists, err := models.UserByEmail(h.Store, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if !exists || !hash.CheckPassword(user.Password, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if user.Status == models.UserSuspended {
		return echo.NewHTTPError(http.StatusForbidden, "account suspended")
	}

	tok, err := token.Sign(user, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("user logged in", "user_id", user.ID)
	return c.JSON(http.StatusOK, authResponse{Token: tok, User: user.Sanitized()})
}
