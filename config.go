package outbound

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Known upstream services with tuned defaults. Market data answers in
// milliseconds and tolerates aggressive retries; the AI analysis provider
// routinely takes tens of seconds per request, so it gets long timeouts and
// fewer retries.
const (
	ServiceMarketData = "market_data"
	ServiceAIAnalysis = "ai_analysis"
)

// Config is the registry-level configuration: one tuned ServiceConfig per
// upstream service name.
type Config struct {
	Services map[string]ServiceConfig `mapstructure:"services"`
}

// ServiceConfig carries every recognized tuning knob for one upstream
// service.
type ServiceConfig struct {
	Pool      PoolSettings      `mapstructure:"pool"`
	Timeouts  TimeoutSettings   `mapstructure:"timeouts"`
	Retry     RetrySettings     `mapstructure:"retry"`
	Breaker   BreakerSettings   `mapstructure:"breaker"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type PoolSettings struct {
	MaxConnections          int           `mapstructure:"max_connections"`
	MaxKeepaliveConnections int           `mapstructure:"max_keepalive_connections"`
	KeepaliveExpiry         time.Duration `mapstructure:"keepalive_expiry"`
}

type TimeoutSettings struct {
	Connect time.Duration `mapstructure:"connect"`
	Read    time.Duration `mapstructure:"read"`
	Request time.Duration `mapstructure:"request"`
}

type RetrySettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

type BreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

type RateLimitSettings struct {
	// MaxTokens of 0 disables local rate limiting for the service.
	MaxTokens  int           `mapstructure:"max_tokens"`
	RefillRate time.Duration `mapstructure:"refill_rate"`
}

// LoadConfig reads registry configuration from an optional outbound.yaml
// (working directory or ./config) overlaid with OUTBOUND_* environment
// variables, falling back to the built-in per-service defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setServiceDefaults(v, ServiceMarketData, ServiceConfig{
		Pool:      PoolSettings{MaxConnections: 50, MaxKeepaliveConnections: 20, KeepaliveExpiry: 90 * time.Second},
		Timeouts:  TimeoutSettings{Connect: 3 * time.Second, Read: 5 * time.Second, Request: 10 * time.Second},
		Retry:     RetrySettings{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2.0, Jitter: 0.2},
		Breaker:   BreakerSettings{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second, SuccessThreshold: 2},
		RateLimit: RateLimitSettings{MaxTokens: 120, RefillRate: 500 * time.Millisecond},
	})
	setServiceDefaults(v, ServiceAIAnalysis, ServiceConfig{
		Pool:     PoolSettings{MaxConnections: 10, MaxKeepaliveConnections: 5, KeepaliveExpiry: 2 * time.Minute},
		Timeouts: TimeoutSettings{Connect: 5 * time.Second, Read: 60 * time.Second, Request: 2 * time.Minute},
		Retry:    RetrySettings{MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: 0.1},
		Breaker:  BreakerSettings{FailureThreshold: 3, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 1},
	})

	v.SetConfigName("outbound")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("outbound")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No file is fine; defaults and env cover the known services.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setServiceDefaults(v *viper.Viper, name string, sc ServiceConfig) {
	prefix := "services." + name + "."
	v.SetDefault(prefix+"pool.max_connections", sc.Pool.MaxConnections)
	v.SetDefault(prefix+"pool.max_keepalive_connections", sc.Pool.MaxKeepaliveConnections)
	v.SetDefault(prefix+"pool.keepalive_expiry", sc.Pool.KeepaliveExpiry)
	v.SetDefault(prefix+"timeouts.connect", sc.Timeouts.Connect)
	v.SetDefault(prefix+"timeouts.read", sc.Timeouts.Read)
	v.SetDefault(prefix+"timeouts.request", sc.Timeouts.Request)
	v.SetDefault(prefix+"retry.max_attempts", sc.Retry.MaxAttempts)
	v.SetDefault(prefix+"retry.base_delay", sc.Retry.BaseDelay)
	v.SetDefault(prefix+"retry.max_delay", sc.Retry.MaxDelay)
	v.SetDefault(prefix+"retry.multiplier", sc.Retry.Multiplier)
	v.SetDefault(prefix+"retry.jitter", sc.Retry.Jitter)
	v.SetDefault(prefix+"breaker.failure_threshold", sc.Breaker.FailureThreshold)
	v.SetDefault(prefix+"breaker.recovery_timeout", sc.Breaker.RecoveryTimeout)
	v.SetDefault(prefix+"breaker.success_threshold", sc.Breaker.SuccessThreshold)
	v.SetDefault(prefix+"rate_limit.max_tokens", sc.RateLimit.MaxTokens)
	v.SetDefault(prefix+"rate_limit.refill_rate", sc.RateLimit.RefillRate)
}

// Validate checks every service section for internally consistent values.
func (c *Config) Validate() error {
	for name, sc := range c.Services {
		if err := sc.validate(); err != nil {
			return validation.Errors{name: err}
		}
	}
	return nil
}

func (sc ServiceConfig) validate() error {
	if err := validation.ValidateStruct(&sc.Retry,
		validation.Field(&sc.Retry.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&sc.Retry.Multiplier, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&sc.Retry.Jitter, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&sc.Breaker,
		validation.Field(&sc.Breaker.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&sc.Breaker.SuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&sc.Breaker.RecoveryTimeout, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&sc.Timeouts,
		validation.Field(&sc.Timeouts.Request, validation.Required),
	)
}

// options converts a service section into client construction options.
func (sc ServiceConfig) options(name string) []Option {
	opts := []Option{
		WithServiceName(name),
		WithPoolConfig(PoolConfig{
			MaxConnections:          sc.Pool.MaxConnections,
			MaxKeepaliveConnections: sc.Pool.MaxKeepaliveConnections,
			KeepaliveExpiry:         sc.Pool.KeepaliveExpiry,
		}),
		WithTimeouts(TimeoutConfig{
			Connect: sc.Timeouts.Connect,
			Read:    sc.Timeouts.Read,
			Request: sc.Timeouts.Request,
		}),
		WithRetryConfig(RetryConfig{
			MaxAttempts: sc.Retry.MaxAttempts,
			BaseDelay:   sc.Retry.BaseDelay,
			MaxDelay:    sc.Retry.MaxDelay,
			Multiplier:  sc.Retry.Multiplier,
			Jitter:      sc.Retry.Jitter,
		}),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: sc.Breaker.FailureThreshold,
			RecoveryTimeout:  sc.Breaker.RecoveryTimeout,
			SuccessThreshold: sc.Breaker.SuccessThreshold,
		}),
	}
	if sc.RateLimit.MaxTokens > 0 {
		opts = append(opts, WithRateLimiter(sc.RateLimit.MaxTokens, sc.RateLimit.RefillRate))
	}
	return opts
}
