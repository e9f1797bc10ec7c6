package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/millomarket/marketplace/internal/handlers"
	mwauth "github.com/millomarket/marketplace/internal/middleware/auth"
	cachemw "github.com/millomarket/marketplace/internal/middleware/cache"
	"github.com/millomarket/marketplace/internal/models"
)

type Deps struct {
	JWTSecret       []byte
	Cache           *redis.Client
	CatalogTTL      time.Duration
	AuthHandler     *handlers.AuthHandler
	CatalogHandler  *handlers.CatalogHandler
	SearchHandler   *handlers.SearchHandler
	CheckoutHandler *handlers.CheckoutHandler
	SellerHandler   *handlers.SellerHandler
	AdminHandler    *handlers.AdminHandler
	TablesHandler   *handlers.TablesHandler
	UploadHandler   *handlers.UploadHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)

	catalogCache := cachemw.Response(d.Cache, d.CatalogTTL)
	v1.GET("/products", d.CatalogHandler.ListProducts, catalogCache)
	v1.GET("/products/:id", d.CatalogHandler.GetProduct, catalogCache)
	v1.GET("/search", d.SearchHandler.Search)

	v1.POST("/checkout", d.CheckoutHandler.Checkout)

	seller := v1.Group("/seller", mwauth.RequireRole(d.JWTSecret, models.RoleSeller, models.RoleAdmin))

	seller.POST("/products", d.SellerHandler.CreateProduct)
	seller.GET("/products", d.SellerHandler.ListProducts)
	seller.PATCH("/products/:id", d.SellerHandler.UpdateProduct)
	seller.DELETE("/products/:id", d.SellerHandler.DeleteProduct)
	seller.GET("/orders", d.SellerHandler.ListOrders)
	seller.PATCH("/orders/:id/status", d.SellerHandler.UpdateOrderStatus)
	seller.GET("/subscriptions", d.SellerHandler.ListSubscriptions)
	seller.POST("/subscriptions/:id/cancel", d.SellerHandler.CancelSubscription)
	seller.POST("/etransfers", d.SellerHandler.SubmitEtransfer)
	seller.GET("/etransfers", d.SellerHandler.ListEtransfers)
	seller.POST("/uploads", d.UploadHandler.Upload)

	admin := v1.Group("/admin", mwauth.RequireRole(d.JWTSecret, models.RoleAdmin))

	admin.GET("/etransfers", d.AdminHandler.ListEtransfers)
	admin.POST("/etransfers/:id/approve", d.AdminHandler.ApproveEtransfer)
	admin.POST("/etransfers/:id/reject", d.AdminHandler.RejectEtransfer)
	admin.GET("/earnings", d.AdminHandler.EarningsSummary)
	admin.GET("/backup", d.AdminHandler.Backup)
	admin.POST("/withdrawals", d.AdminHandler.Withdraw)

	tables := admin.Group("/tables")

	tables.GET("/:table", d.TablesHandler.List)
	tables.POST("/:table", d.TablesHandler.Create)
	tables.GET("/:table/:id", d.TablesHandler.Get)
	tables.PUT("/:table/:id", d.TablesHandler.Update)
	tables.PATCH("/:table/:id", d.TablesHandler.Update)
	tables.DELETE("/:table/:id", d.TablesHandler.Delete)
}
