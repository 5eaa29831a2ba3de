// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/payment"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
	"github.com/your-org/marketplace-backend/internal/domain/review"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"github.com/your-org/marketplace-backend/internal/domain/wishlist"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/handlers"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// Services holds the domain services shared by the API and the worker
type Services struct {
	Users       *user.Service
	Addresses   *user.AddressService
	Admin       *user.AdminService
	Products    *product.Service
	Categories  *product.CategoryService
	Carts       *cart.Service
	Promos      *promo.Service
	Orders      *order.Service
	Ledger      *ledger.Service
	Payments    *payment.Service
	Fulfillment *fulfillment.Service
	Reviews     *review.Service
	Wishlists   *wishlist.Service
}

// NewServices wires every domain service against one database handle
func NewServices(db *gorm.DB, cfg *config.Config, logger logrus.FieldLogger, dispatcher shared.JobDispatcher) *Services {
	ledgerService := ledger.NewService(db, cfg, logger)
	orderService := order.NewService(db, cfg, logger, dispatcher)
	cartService := cart.NewService(db, cfg)

	return &Services{
		Users:       user.NewService(db, cfg),
		Addresses:   user.NewAddressService(db),
		Admin:       user.NewAdminService(db, cfg),
		Products:    product.NewService(db, cfg),
		Categories:  product.NewCategoryService(db),
		Carts:       cartService,
		Promos:      promo.NewService(db),
		Orders:      orderService,
		Ledger:      ledgerService,
		Payments:    payment.NewService(db, cfg, ledgerService, orderService, logger),
		Fulfillment: fulfillment.NewService(db, logger, dispatcher),
		Reviews:     review.NewService(db, logger),
		Wishlists:   wishlist.NewService(db, cartService),
	}
}

// SetupRoutes registers every API route on rg
func SetupRoutes(rg *gin.RouterGroup, s *Services, cfg *config.Config, logger logrus.FieldLogger) {
	authHandler := handlers.NewAuthHandler(s.Users, s.Carts, logger)
	addressHandler := handlers.NewAddressHandler(s.Addresses)
	productHandler := handlers.NewProductHandler(s.Products)
	categoryHandler := handlers.NewCategoryHandler(s.Categories)
	cartHandler := handlers.NewCartHandler(s.Carts, cfg)
	checkoutHandler := handlers.NewCheckoutHandler(s.Orders, s.Promos)
	orderHandler := handlers.NewOrderHandler(s.Orders)
	paymentHandler := handlers.NewPaymentHandler(s.Payments)
	balanceHandler := handlers.NewBalanceHandler(s.Ledger)
	keyHandler := handlers.NewDigitalKeyHandler(s.Fulfillment)
	reviewHandler := handlers.NewReviewHandler(s.Reviews)
	adminHandler := handlers.NewAdminHandler(s.Admin, s.Promos)
	wishlistHandler := handlers.NewWishlistHandler(s.Wishlists)

	authRequired := middleware.AuthMiddleware(cfg)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg)

	auth := rg.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)

		protected := auth.Group("", authRequired)
		{
			protected.GET("/profile", authHandler.GetProfile)
			protected.POST("/become-seller", authHandler.BecomeSeller)
		}
	}

	users := rg.Group("/users", authRequired)
	{
		users.GET("/addresses", addressHandler.GetAddresses)
		users.POST("/addresses", addressHandler.CreateAddress)
		users.DELETE("/addresses/:id", addressHandler.DeleteAddress)
	}

	products := rg.Group("/products", optionalAuth)
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/slug/:slug", productHandler.GetProductBySlug)
		products.GET("/:id/stock", productHandler.GetStock)
		products.GET("/:id/reviews", reviewHandler.GetProductReviews)
		products.GET("/:id/reviews/summary", reviewHandler.GetReviewSummary)
		products.POST("/:id/reviews", authRequired, reviewHandler.CreateReview)
	}

	categories := rg.Group("/categories")
	{
		categories.GET("", categoryHandler.GetCategories)
		categories.GET("/:id", categoryHandler.GetCategory)
	}

	reviews := rg.Group("/reviews", authRequired)
	{
		reviews.PUT("/:id", reviewHandler.UpdateReview)
		reviews.DELETE("/:id", reviewHandler.DeleteReview)
		reviews.POST("/:id/helpful", reviewHandler.MarkHelpful)
	}

	// Guests are tracked by the session cookie, members by their token
	cartGroup := rg.Group("/cart", optionalAuth)
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddToCart)
		cartGroup.PUT("/items/:id", cartHandler.UpdateCartItem)
		cartGroup.DELETE("/items/:id", cartHandler.RemoveFromCart)
		cartGroup.DELETE("", cartHandler.ClearCart)
	}

	wishlistGroup := rg.Group("/wishlist", authRequired)
	{
		wishlistGroup.GET("", wishlistHandler.GetWishlist)
		wishlistGroup.DELETE("", wishlistHandler.ClearWishlist)
		wishlistGroup.GET("/count", wishlistHandler.GetWishlistCount)
		wishlistGroup.GET("/check/:id", wishlistHandler.CheckItemInWishlist)
		wishlistGroup.POST("/items", wishlistHandler.AddToWishlist)
		wishlistGroup.POST("/bulk", wishlistHandler.BulkAddToWishlist)
		wishlistGroup.DELETE("/items/:id", wishlistHandler.RemoveFromWishlist)
		wishlistGroup.POST("/items/:id/move-to-cart", wishlistHandler.MoveToCart)
	}

	checkout := rg.Group("/checkout", authRequired)
	{
		checkout.POST("", checkoutHandler.Checkout)
		checkout.POST("/promo", checkoutHandler.PreviewPromo)
	}

	orders := rg.Group("/orders", authRequired)
	{
		orders.GET("", orderHandler.GetOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.POST("/:id/cancel", orderHandler.CancelOrder)
		orders.POST("/:id/pay", paymentHandler.PayWithBalance)
	}

	balance := rg.Group("/balance", authRequired)
	{
		balance.GET("", balanceHandler.GetBalance)
		balance.GET("/transactions", balanceHandler.ListTransactions)
		balance.GET("/reconcile", balanceHandler.Reconcile)
		balance.POST("/topups", balanceHandler.CreateTopUp)
		balance.GET("/topups/:id", balanceHandler.GetTopUp)
	}

	rg.GET("/digital-keys", authRequired, keyHandler.MyKeys)

	// Provider callbacks authenticate with the body signature
	rg.POST("/webhooks/:provider", paymentHandler.Webhook)

	seller := rg.Group("/seller", authRequired, middleware.RequireRole(string(user.UserTypeSeller)))
	{
		seller.GET("/products", productHandler.SellerProducts)
		seller.POST("/products", productHandler.CreateProduct)
		seller.PUT("/products/:id", productHandler.UpdateProduct)
		seller.DELETE("/products/:id", productHandler.DeleteProduct)
		seller.POST("/products/:id/keys", keyHandler.AddKeys)

		seller.GET("/orders", orderHandler.SellerOrders)
		seller.POST("/orders/:id/ship", orderHandler.ShipOrder)

		seller.POST("/withdrawals", balanceHandler.Withdraw)
	}

	admin := rg.Group("/admin", authRequired, middleware.AdminMiddleware())
	{
		admin.POST("/categories", categoryHandler.CreateCategory)

		admin.GET("/orders", orderHandler.AdminGetOrders)
		admin.GET("/orders/:id", orderHandler.AdminGetOrder)
		admin.PUT("/orders/:id/status", orderHandler.AdminUpdateOrderStatus)
		admin.POST("/orders/:id/fulfill", keyHandler.FulfillOrder)

		admin.GET("/sellers", adminHandler.ListSellers)
		admin.POST("/sellers/:id/approve", adminHandler.ApproveSeller)
		admin.PUT("/sellers/:id/commission", adminHandler.UpdateCommission)

		admin.POST("/promos", adminHandler.CreatePromo)
		admin.PUT("/promos/:id/active", adminHandler.SetPromoActive)

		admin.PUT("/reviews/:id/approval", reviewHandler.SetApproval)

		admin.GET("/users/:id/reconcile", balanceHandler.AdminReconcile)

		admin.GET("/webhooks", paymentHandler.ListWebhooks)
		admin.POST("/webhooks/replay", paymentHandler.ReplayWebhooks)

		admin.GET("/digital-keys/pending", keyHandler.PendingDeliveries)
		admin.POST("/digital-keys/products/:id/retry", keyHandler.RetryProduct)
	}
}
