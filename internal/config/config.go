package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the flattened process configuration. Each field maps to the
// environment variable named in its koanf tag.
type Config struct {
	AppEnv             string        `koanf:"APP_ENV"`
	Port               string        `koanf:"PORT"`
	DatabaseURL        string        `koanf:"DATABASE_URL" validate:"required"`
	RedisURL           string        `koanf:"REDIS_URL" validate:"required"`
	JWTSecret          string        `koanf:"JWT_SECRET" validate:"required"`
	JWTIssuer          string        `koanf:"JWT_ISSUER"`
	JWTAudience        string        `koanf:"JWT_AUDIENCE"`
	CORSAllowedOrigins []string      `koanf:"-"`
	DBAutoMigrate      bool          `koanf:"DB_AUTO_MIGRATE"`
	DBMaxConns         int           `koanf:"DB_MAX_CONNS" validate:"gte=1"`
	HTTPRateLimit      string        `koanf:"HTTP_RATE_LIMIT" validate:"required"`
	IdempotencyTTL     time.Duration `koanf:"IDEMPOTENCY_TTL" validate:"gt=0"`
	AuditEnabled       bool          `koanf:"AUDIT_ENABLED"`

	VoucherCacheTTL time.Duration `koanf:"VOUCHER_CACHE_TTL"`

	RewardMaxRetries  int           `koanf:"REWARD_MAX_RETRIES" validate:"gte=0"`
	RewardSpinsPerDay int           `koanf:"REWARD_SPINS_PER_DAY" validate:"gte=0"`
	RewardSpinWindow  time.Duration `koanf:"REWARD_SPIN_WINDOW" validate:"gt=0"`
	RewardLockTTL     time.Duration `koanf:"REWARD_LOCK_TTL" validate:"gt=0"`
	RewardLockWait    time.Duration `koanf:"REWARD_LOCK_WAIT"`
	SpinBurstPerMin   int           `koanf:"SPIN_BURST_PER_MINUTE" validate:"gte=1"`
	WalletCacheTTL    time.Duration `koanf:"WALLET_CACHE_TTL"`

	StoreLatitude      float64 `koanf:"STORE_LATITUDE" validate:"gte=-90,lte=90"`
	StoreLongitude     float64 `koanf:"STORE_LONGITUDE" validate:"gte=-180,lte=180"`
	ShippingDefaultFee int64   `koanf:"SHIPPING_DEFAULT_FEE" validate:"gte=0"`
	CurrencyCode       string  `koanf:"CURRENCY_CODE" validate:"len=3"`

	LogFormat          string        `koanf:"OBS_LOG_FORMAT" validate:"oneof=json console text"`
	LogLevel           string        `koanf:"OBS_LOG_LEVEL"`
	MetricsEnabled     bool          `koanf:"OBS_ENABLE_PROMETHEUS"`
	MetricsNamespace   string        `koanf:"OBS_METRICS_NAMESPACE" validate:"required"`
	MetricsBucketsMS   string        `koanf:"OBS_METRICS_BUCKETS_MS"`
	TracingEnabled     bool          `koanf:"OBS_ENABLE_TRACING"`
	TracingExporter    string        `koanf:"OBS_TRACING_EXPORTER" validate:"oneof=otlp none"`
	OTLPEndpoint       string        `koanf:"OBS_OTLP_ENDPOINT"`
	TracingSampleRatio float64       `koanf:"OBS_TRACING_SAMPLING_RATIO" validate:"gte=0,lte=1"`
	PprofEnabled       bool          `koanf:"OBS_ENABLE_PPROF"`
	PprofUser          string        `koanf:"PPROF_BASIC_AUTH_USER"`
	PprofPass          string        `koanf:"PPROF_BASIC_AUTH_PASS"`
	ShutdownTimeout    time.Duration `koanf:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

var defaults = staticProvider{
	"APP_ENV":               "development",
	"PORT":                  "8080",
	"JWT_ISSUER":            "greenmart",
	"JWT_AUDIENCE":          "greenmart-web",
	"DB_AUTO_MIGRATE":       true,
	"DB_MAX_CONNS":          10,
	"HTTP_RATE_LIMIT":       "300-M",
	"IDEMPOTENCY_TTL":       "24h",
	"AUDIT_ENABLED":         true,
	"VOUCHER_CACHE_TTL":     "60s",
	"REWARD_MAX_RETRIES":    10,
	"REWARD_SPINS_PER_DAY":  1,
	"REWARD_SPIN_WINDOW":    "24h",
	"REWARD_LOCK_TTL":       "10s",
	"REWARD_LOCK_WAIT":      "250ms",
	"SPIN_BURST_PER_MINUTE": 10,
	"WALLET_CACHE_TTL":      "10m",
	"STORE_LATITUDE":        10.7769,
	"STORE_LONGITUDE":       106.7009,
	"SHIPPING_DEFAULT_FEE":  30000,
	"CURRENCY_CODE":         "VND",

	"OBS_LOG_FORMAT":             "json",
	"OBS_LOG_LEVEL":              "info",
	"OBS_ENABLE_PROMETHEUS":      true,
	"OBS_METRICS_NAMESPACE":      "greenmart",
	"OBS_ENABLE_TRACING":         true,
	"OBS_TRACING_EXPORTER":       "otlp",
	"OBS_TRACING_SAMPLING_RATIO": 1.0,
	"OBS_ENABLE_PPROF":           false,
	"SHUTDOWN_TIMEOUT":           "10s",
}

// staticProvider feeds a fixed key/value map into koanf.
type staticProvider map[string]any

func (p staticProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("static provider does not support ReadBytes")
}

func (p staticProvider) Read() (map[string]any, error) {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, nil
}

// Load layers .env, then the process environment, over the defaults.
// Blank variables keep their default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(defaults, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	nonBlank := func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, strings.TrimSpace(value)
	}
	if err := k.Load(env.ProviderWithValue("", ".", nonBlank), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitAndTrim(k.String("CORS_ALLOWED_ORIGINS"))
	cfg.CurrencyCode = strings.ToUpper(cfg.CurrencyCode)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.TracingExporter = strings.ToLower(cfg.TracingExporter)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var configValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	return v
}()

func validate(cfg *Config) error {
	err := configValidator.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadForTests runs Load with env temporarily applied. Empty values unset
// the variable for the duration of the call.
func LoadForTests(env map[string]string) (*Config, error) {
	saved := make(map[string]*string, len(env))
	for key, value := range env {
		if old, ok := os.LookupEnv(key); ok {
			saved[key] = &old
		} else {
			saved[key] = nil
		}
		if value == "" {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, value)
		}
	}
	defer func() {
		for key, old := range saved {
			if old == nil {
				_ = os.Unsetenv(key)
			} else {
				_ = os.Setenv(key, *old)
			}
		}
	}()
	return Load()
}
