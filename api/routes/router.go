package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/address"
	"github.com/angelmondragon/bazaar-backend/internal/auth"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/internal/wishlist"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// RequestStore backs request idempotency and the auth rate limiter.
type RequestStore interface {
	middleware.ResponseStore
	middleware.RateLimiter
}

// Dependencies collects everything the HTTP surface is built from. Nil
// services answer with an internal error instead of panicking.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Store    RequestStore
	Sessions session.AccessSessionChecker
	Gatherer prometheus.Gatherer

	Auth          auth.Service
	Register      auth.RegisterService
	Users         users.Service
	Products      product.Service
	Ledger        ledger.Service
	Addresses     address.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Wishlist      wishlist.Service
	Notifications notifications.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	var (
		rateStore   middleware.RateLimiter
		idempotency middleware.ResponseStore
	)
	if deps.Store != nil {
		rateStore = deps.Store
		idempotency = deps.Store
	}
	idem := middleware.Idempotency(idempotency, logg)

	pingers := map[string]controllers.Pinger{}
	if deps.DB != nil {
		pingers["db"] = deps.DB
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg), idem).Post("/register", controllers.AuthRegister(deps.Register, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
	})

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
		r.Get("/products", controllers.CatalogListProducts(deps.Products, logg))
		r.Get("/products/{productID}", controllers.CatalogGetProduct(deps.Products, logg))
		r.Get("/products/{productID}/reviews", controllers.CatalogListReviews(deps.Products, logg))
		r.With(middleware.RequirePermission(enums.PermissionShop, logg)).Post("/products/{productID}/reviews", controllers.CatalogAddReview(deps.Products, logg))
		r.Get("/categories", controllers.CatalogListCategories(deps.Products, logg))
		r.Get("/tags", controllers.CatalogListTags(deps.Products, logg))
		r.Get("/vendors/{vendorID}", controllers.CatalogGetStorefront(deps.Products, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Get("/wallet", controllers.WalletBalance(deps.Ledger, logg))
		r.Get("/wallet/transactions", controllers.WalletTransactions(deps.Ledger, logg))

		r.Get("/address", controllers.GetAddress(deps.Addresses, logg))
		r.Put("/address", controllers.UpsertAddress(deps.Addresses, logg))

		r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
		r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		r.Post("/notifications/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(enums.PermissionShop, logg))

			r.Get("/cart", controllers.GetCart(deps.Cart, logg))
			r.Get("/cart/count", controllers.CartCount(deps.Cart, logg))
			r.With(idem).Post("/cart/items", controllers.AddCartItem(deps.Cart, logg))
			r.With(idem).Patch("/cart/items/{itemID}", controllers.UpdateCartItem(deps.Cart, logg))

			r.With(idem).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

			r.Get("/orders", controllers.ListMyOrders(deps.Orders, logg))
			r.Get("/orders/{orderID}", controllers.GetMyOrder(deps.Orders, logg))

			r.Get("/wishlist", controllers.GetWishlist(deps.Wishlist, logg))
			r.Get("/wishlist/ids", controllers.GetWishlistIDs(deps.Wishlist, logg))
			r.Post("/wishlist/{productID}", controllers.AddWishlistItem(deps.Wishlist, logg))
			r.Delete("/wishlist/{productID}", controllers.RemoveWishlistItem(deps.Wishlist, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequirePermission(enums.PermissionSellProducts, logg))
			r.Get("/products", controllers.VendorListProducts(deps.Products, logg))
			r.With(idem).Post("/products", controllers.VendorCreateProduct(deps.Products, logg))
			r.Patch("/products/{productID}", controllers.VendorUpdateProduct(deps.Products, logg))
			r.Delete("/products/{productID}", controllers.DeleteProduct(deps.Products, logg))
			r.Get("/orders", controllers.VendorOrders(deps.Orders, logg))
			r.Get("/sales", controllers.VendorSales(deps.Orders, logg))
			r.Get("/profile", controllers.VendorGetProfile(deps.Products, logg))
			r.Patch("/profile", controllers.VendorUpdateProfile(deps.Products, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RequirePermission(enums.PermissionManageOrders, logg)).Get("/dashboard", controllers.AdminDashboard(deps.Orders, logg))
			r.With(middleware.RequirePermission(enums.PermissionViewWallets, logg)).Get("/wallets", controllers.AdminWallets(deps.Ledger, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(enums.PermissionModerateProducts, logg))
				r.Get("/products", controllers.AdminListProducts(deps.Products, logg))
				r.Post("/products/{productID}/approve", controllers.AdminModerateProduct(deps.Products, controllers.ModerationApprove, logg))
				r.Post("/products/{productID}/deny", controllers.AdminModerateProduct(deps.Products, controllers.ModerationDeny, logg))
				r.Post("/products/{productID}/disable", controllers.AdminModerateProduct(deps.Products, controllers.ModerationDisable, logg))
				r.Delete("/products/{productID}", controllers.DeleteProduct(deps.Products, logg))
			})

			r.With(middleware.RequirePermission(enums.PermissionManageCatalog, logg)).Post("/categories", controllers.AdminCreateCategory(deps.Products, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(enums.PermissionManageUsers, logg))
				r.Get("/users", controllers.AdminListUsers(deps.Users, logg))
				r.Patch("/users/{userID}", controllers.AdminUpdateUser(deps.Users, logg))
				r.Delete("/users/{userID}", controllers.AdminDeleteUser(deps.Users, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(enums.PermissionManageOrders, logg))
				r.Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
				r.Get("/orders/{orderID}", controllers.AdminGetOrder(deps.Orders, logg))
				r.Patch("/orders/{orderID}/status", controllers.AdminUpdateShippingStatus(deps.Orders, logg))
			})
		})
	})

	return r
}
