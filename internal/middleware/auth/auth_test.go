package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/token"
)

var testSecret = []byte("test-secret")

func call(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (error, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return handler(c), c
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	raw, err := token.Sign(models.User{ID: "user-1", Email: "a@b.c", Role: role}, testSecret)
	require.NoError(t, err)
	return "Bearer " + raw
}

func TestRequireLogin(t *testing.T) {
	err, c := call(t, RequireLogin(testSecret), bearer(t, models.RoleBuyer))
	require.NoError(t, err)

	id, ok := UserID(c)
	require.True(t, ok)
	require.Equal(t, models.UserID("user-1"), id)
}

func TestRequireLoginRejects(t *testing.T) {
	for _, header := range []string{"", "Bearer garbage", "Basic abc"} {
		err, _ := call(t, RequireLogin(testSecret), header)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, "header %q", header)
		require.Equal(t, http.StatusUnauthorized, he.Code)
	}
}

func TestRequireRole(t *testing.T) {
	err, _ := call(t, RequireRole(testSecret, models.RoleAdmin), bearer(t, models.RoleAdmin))
	require.NoError(t, err)

	err, _ = call(t, RequireRole(testSecret, models.RoleAdmin), bearer(t, models.RoleSeller))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)

	// multiple allowed roles
	err, _ = call(t, RequireRole(testSecret, models.RoleSeller, models.RoleAdmin), bearer(t, models.RoleSeller))
	require.NoError(t, err)
}
