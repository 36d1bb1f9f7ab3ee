package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/greenmart/internal/audit"
	"github.com/noah-isme/greenmart/internal/auth"
	"github.com/noah-isme/greenmart/internal/checkout"
	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/events"
	"github.com/noah-isme/greenmart/internal/geo"
	"github.com/noah-isme/greenmart/internal/health"
	"github.com/noah-isme/greenmart/internal/lock"
	"github.com/noah-isme/greenmart/internal/obs"
	"github.com/noah-isme/greenmart/internal/ratelimit"
	"github.com/noah-isme/greenmart/internal/resilience"
	"github.com/noah-isme/greenmart/internal/reward"
	"github.com/noah-isme/greenmart/internal/security"
	"github.com/noah-isme/greenmart/internal/shipping"
	"github.com/noah-isme/greenmart/internal/voucher"
	"github.com/noah-isme/greenmart/internal/wallet"
)

const accessCookie = "access_token"

// Services groups the domain services built from Dependencies.
type Services struct {
	Auth     *auth.Service
	Events   *events.Bus
	Vouchers *voucher.Service
	Wallet   *wallet.Service
	Rewards  *reward.Service
	Shipping shipping.Quoter
	Checkout *checkout.Service
}

// NewServices wires the domain services on top of the shared infrastructure.
func NewServices(deps Dependencies) (*Services, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	authSvc, err := auth.NewService(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	bus := &events.Bus{
		Store:     events.NewStore(deps.DB),
		Notifiers: []events.Notifier{events.LogNotifier{Logger: deps.Logger.With().Str("component", "events").Logger()}},
	}
	vouchers := &voucher.Service{
		Store:  voucher.NewStore(deps.DB),
		Cache:  voucher.NewCache(deps.Redis, cfg.VoucherCacheTTL),
		Events: bus,
		Logger: deps.Logger.With().Str("component", "voucher").Logger(),
	}
	breaker := resilience.NewBreaker(resilience.Settings{
		Name:         "wallet-ledger",
		MinRequests:  5,
		FailureRatio: 0.5,
		OpenFor:      30 * time.Second,
		IsFailure:    wallet.LedgerFailure,
		Logger:       &deps.Logger,
	})
	wallets := &wallet.Service{
		Ledger:  wallet.NewLedger(deps.DB),
		Cache:   wallet.NewCache(deps.Redis, cfg.WalletCacheTTL),
		Catalog: vouchers,
		Breaker: breaker,
		Logger:  deps.Logger.With().Str("component", "wallet").Logger(),
	}
	rewards := &reward.Service{
		Catalog:     vouchers,
		Wallet:      wallets,
		Locker:      lock.Locker{R: deps.Redis, Prefix: "greenmart:lock:"},
		Allowance:   ratelimit.Limiter{Client: deps.Redis, Prefix: "greenmart:allowance:"},
		Events:      bus,
		Logger:      deps.Logger.With().Str("component", "reward").Logger(),
		MaxRetries:  cfg.RewardMaxRetries,
		SpinsPerDay: cfg.RewardSpinsPerDay,
		SpinWindow:  cfg.RewardSpinWindow,
		LockTTL:     cfg.RewardLockTTL,
		LockWait:    cfg.RewardLockWait,
	}
	store := geo.Coordinate{Latitude: cfg.StoreLatitude, Longitude: cfg.StoreLongitude}
	quoter := shipping.NewQuoter(deps.Wards, store, cfg.ShippingDefaultFee)
	return &Services{
		Auth:     authSvc,
		Events:   bus,
		Vouchers: vouchers,
		Wallet:   wallets,
		Rewards:  rewards,
		Shipping: quoter,
		Checkout: &checkout.Service{
			Vouchers: vouchers,
			Wallet:   wallets,
			Shipping: quoter,
			Logger:   deps.Logger.With().Str("component", "checkout").Logger(),
		},
	}, nil
}

// NewRouter builds the HTTP surface of the API.
func NewRouter(deps Dependencies, svcs *Services) (http.Handler, error) {
	cfg := deps.Config
	if cfg == nil || svcs == nil {
		return nil, errors.New("app: config and services are required")
	}
	v := deps.Validator
	if v == nil {
		v = validator.New()
	}
	store := deps.LimiterStore
	if store == nil {
		store = memory.NewStore()
	}
	ipLimit, err := NewIPRateLimit(store, cfg.HTTPRateLimit, deps.Logger)
	if err != nil {
		return nil, err
	}

	authMiddleware := auth.Middleware{Service: svcs.Auth, AccessCookie: accessCookie}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	spinBurst := ratelimit.Burst{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "greenmart:burst:"},
		Key:     ratelimit.KeyByUserOrIP("spin:"),
		Window:  time.Minute,
		Max:     cfg.SpinBurstPerMin,
		Logger:  deps.Logger,
	}

	voucherHandler := &voucher.Handler{Svc: svcs.Vouchers, Validator: v}
	walletHandler := &wallet.Handler{Svc: svcs.Wallet}
	rewardHandler := &reward.Handler{Svc: svcs.Rewards}
	shippingHandler := &shipping.Handler{Quoter: svcs.Shipping, Validator: v}
	checkoutHandler := &checkout.Handler{Svc: svcs.Checkout, Validator: v}
	auditStore := audit.NewStore(deps.DB)
	auditRec := audit.HTTPRecorder{
		Service: audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled},
		Logger:  deps.Logger,
	}
	auditHandler := audit.Handler{Store: auditStore}
	healthHandler := health.Handler{
		Checker: Readiness{DB: deps.DB, Redis: deps.Redis},
		Wards:   deps.Wards,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{HSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if deps.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if deps.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: deps.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: deps.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount(pprofPrefix, NewPprofHandler(cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ipLimit)
		api.Use(security.BodyLimit{Max: security.DefaultMaxBody}.Middleware)
		api.Use(security.CSRF{AccessCookie: accessCookie}.Middleware)

		api.Get("/vouchers", voucherHandler.ListEligible)
		api.Get("/vouchers/{id}", voucherHandler.Get)
		api.Post("/vouchers/preview", voucherHandler.Preview)

		api.Get("/rewards/wheel", rewardHandler.Wheel)
		api.With(authMiddleware.RequireAuth, spinBurst.Middleware, idem.Middleware).
			Post("/rewards/spin", rewardHandler.Spin)

		api.With(authMiddleware.RequireAuth).Get("/users/me/vouchers", walletHandler.Mine)

		api.Post("/shipping/quote", shippingHandler.Quote)
		api.With(authMiddleware.Authenticate).Post("/checkout/summary", checkoutHandler.Summary)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin))
			admin.Get("/vouchers", voucherHandler.AdminList)
			admin.With(auditRec.Middleware(audit.HTTPConfig{Action: "voucher.create", ResourceType: "voucher"})).
				Post("/vouchers", voucherHandler.Create)
			admin.With(auditRec.Middleware(audit.HTTPConfig{Action: "voucher.update", ResourceType: "voucher", ResourceIDParam: "id"})).
				Put("/vouchers/{id}", voucherHandler.Update)
			admin.Get("/audit-logs", auditHandler.List)
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
