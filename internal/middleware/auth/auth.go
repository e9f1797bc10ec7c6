package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/token"
)

// RequireLogin validates the bearer token and stores the caller's identity
// on the echo context under "userID", "email" and "role".
func RequireLogin(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			claims, err := token.Parse(raw, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			setUserContext(c, claims)
			return next(c)
		}
	}
}

// RequireRole is RequireLogin plus a role check.
func RequireRole(secret []byte, roles ...string) echo.MiddlewareFunc {
	login := RequireLogin(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return login(func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			for _, allowed := range roles {
				if role == allowed {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
		})
	}
}

// UserID returns the authenticated caller's id, if any.
func UserID(c echo.Context) (models.UserID, bool) {
	id, ok := c.Get("userID").(models.UserID)
	return id, ok && id != ""
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}

func setUserContext(c echo.Context, claims token.Claims) {
	c.Set("userID", claims.UserID)
	c.Set("email", claims.Email)
	c.Set("role", claims.Role)
}
