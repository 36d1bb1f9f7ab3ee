package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/config"
	"github.com/noah-isme/greenmart/internal/geo"
	"github.com/noah-isme/greenmart/internal/obs"
)

// Dependencies enumerates the infrastructure shared by every module.
type Dependencies struct {
	Config       *config.Config
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Validator    *validator.Validate
	Wards        *geo.WardTable
	LimiterStore limiter.Store
	HTTPMetrics  *obs.HTTPMetrics
	Tracing      bool
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "greenmart:limiter"})
}

// NewIPRateLimit throttles every API request per client IP using a formatted
// rate such as "300-M".
func NewIPRateLimit(store limiter.Store, formatted string, logger zerolog.Logger) (func(http.Handler) http.Handler, error) {
	if store == nil {
		return nil, errors.New("app: limiter store is required")
	}
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, err
	}
	mw := stdlib.NewMiddleware(limiter.New(store, rate),
		stdlib.WithKeyGetter(common.ClientIP),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("client_ip", common.ClientIP(r)).Msg("ip rate limiter")
			common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "rate limiter unavailable", nil)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
		}),
	)
	return mw.Handler, nil
}

// Readiness probes the pool and Redis client for the health endpoint.
type Readiness struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// PingDB implements health.Checker.
func (c Readiness) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.DB == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.DB.Ping(ctx)
}

// PingRedis implements health.Checker.
func (c Readiness) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
