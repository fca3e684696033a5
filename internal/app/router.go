package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/security"
	"github.com/noah-isme/toko-storefront/internal/session"
	"github.com/noah-isme/toko-storefront/internal/shipping"
	"github.com/noah-isme/toko-storefront/internal/wishlist"
)

// RouterOptions toggles instrumentation that tests usually leave off.
type RouterOptions struct {
	Metrics *obs.HTTPMetrics
	Tracing bool
}

const lockTTLMargin = time.Second

// checkoutLockTTL keeps the checkout lock alive for at least the gateway's
// worst-case submit, so a retried submit cannot outlive it.
func checkoutLockTTL(configured time.Duration, gw checkout.Gateway) time.Duration {
	b, ok := gw.(interface{ Budget() time.Duration })
	if !ok || b.Budget() <= 0 {
		return configured
	}
	return max(configured, b.Budget()+lockTTLMargin)
}

// NewRouter builds the HTTP surface of the storefront.
func NewRouter(d *Dependencies, opts RouterOptions) (http.Handler, error) {
	cfg := d.Config

	globalLimit, err := ratelimit.Global(d.LimiterStore, cfg.RateLimitGlobal)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", common.SessionHeader},
		ExposedHeaders:   []string{common.SessionHeader, "X-Total-Count", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled, HSTSIncludeSubdomains: true}.Middleware)

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	checks := map[string]health.Checker{}
	if d.Redis != nil {
		checks["redis"] = health.RedisChecker(d.Redis)
	}
	healthHandler := health.Handler{Checks: checks}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	catalogHandler := catalog.NewHandler(d.Catalog)
	shippingHandler := &shipping.Handler{Resolver: d.Shipping}
	cartHandler := &cart.Handler{
		Carts:          session.CartFor,
		Products:       d.Catalog,
		Events:         d.Events,
		Locker:         d.Locker,
		LockTTL:        checkoutLockTTL(cfg.CheckoutLockTTL, d.Checkout),
		ClearOnSuccess: cfg.CheckoutClearCart,
		PromoGuard: ratelimit.Handler{
			Limiter: d.PromoLimiter,
			Config: ratelimit.Config{
				Key:    ratelimit.SessionOrIP("promo:"),
				Window: cfg.PromoLimitWindow,
				Max:    cfg.PromoLimitMax,
			},
			OnError: func(err error) {
				d.Logger.Warn().Err(err).Msg("promo rate limiter unavailable")
			},
		}.Middleware,
	}
	wishlistHandler := &wishlist.Handler{
		Wishlists: session.WishlistFor,
		Carts:     session.CartFor,
		Catalog:   d.Catalog,
		Events:    d.Events,
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(globalLimit)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		if cfg.CSRFEnabled {
			v.Use(security.CSRF{Secure: cfg.CookieSecure}.Middleware)
		}

		catalogHandler.Routes(v)
		v.Get("/shipping/methods", shippingHandler.Methods)

		v.Group(func(s chi.Router) {
			s.Use(d.Sessions.Middleware(session.CookieOptions{Secure: cfg.CookieSecure, MaxAge: cfg.SessionSnapshotTTL}))
			s.Route("/cart", cartHandler.Routes)
			s.Route("/wishlist", wishlistHandler.Routes)
		})
	})
	return r, nil
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
