package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/promo"
	"github.com/noah-isme/toko-storefront/internal/queue"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/session"
	"github.com/noah-isme/toko-storefront/internal/shipping"
)

// Dependencies enumerates the services shared by the HTTP handlers. Redis
// backed parts fall back to in-process implementations when Redis is not
// configured.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger

	Redis      *redis.Client
	TaskClient *asynq.Client

	Catalog  *catalog.Catalog
	Promo    *promo.Table
	Shipping *shipping.Resolver
	Checkout checkout.Gateway
	Breaker  *resilience.Breaker
	Locker   lock.Locker
	Events   *events.Bus
	Sessions *session.Manager

	LimiterStore limiter.Store
	PromoLimiter ratelimit.Allower
}

// New wires every dependency from cfg. Callers own the returned value and
// must Close it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	d := &Dependencies{Config: cfg, Logger: logger}

	if cfg.RedisURL != "" {
		client, err := NewRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, logger)
		if err != nil {
			return nil, err
		}
		d.Redis = client
	}

	var err error
	if d.Catalog, err = catalog.Default(); err != nil {
		d.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	rules := promo.DefaultRules()
	if cfg.PromoCodes != "" {
		if rules, err = promo.ParseRules(cfg.PromoCodes); err != nil {
			d.Close()
			return nil, fmt.Errorf("PROMO_CODES: %w", err)
		}
	}
	d.Promo = promo.NewTable(rules...)
	d.Shipping = shipping.NewResolver(cfg.FreeShippingThreshold, shipping.DefaultMethods()...)

	if cfg.CheckoutServiceURL != "" {
		d.Breaker = resilience.NewBreaker(resilience.Settings{
			Target:       "checkout",
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
			Logger:       &d.Logger,
		})
		d.Checkout = checkout.NewHTTPGateway(checkout.HTTPGatewayConfig{
			URL:         cfg.CheckoutServiceURL,
			Secret:      cfg.CheckoutSecret,
			Timeout:     cfg.CheckoutTimeout,
			MaxAttempts: cfg.CheckoutMaxAttempts,
			BaseBackoff: cfg.CheckoutBackoff,
			Breaker:     d.Breaker,
		})
	} else {
		d.Checkout = checkout.StubGateway{}
	}

	notifiers := []events.Notifier{events.LogNotifier{Logger: &d.Logger}}
	var snapshots session.SnapshotStore = session.NopSnapshots{}
	if d.Redis != nil {
		d.Locker = lock.RedisLocker{R: d.Redis, Prefix: cfg.RedisPrefix}
		d.PromoLimiter = ratelimit.Limiter{Client: d.Redis, Prefix: cfg.RedisPrefix + ":ratelimit:"}
		snapshots = session.NewRedisSnapshots(d.Redis, cfg.RedisPrefix, cfg.SessionSnapshotTTL)

		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		d.TaskClient = asynq.NewClient(opt)
		notifiers = append(notifiers, &queue.Publisher{
			Client:   d.TaskClient,
			Queue:    cfg.QueueName,
			MaxRetry: cfg.QueueMaxRetry,
		})
	} else {
		d.Locker = &lock.LocalLocker{}
		d.PromoLimiter = &ratelimit.MemoryWindow{}
	}
	d.Events = &events.Bus{Notifiers: notifiers}

	if d.LimiterStore, err = ratelimit.NewStore(d.Redis, cfg.RedisPrefix+":limiter"); err != nil {
		d.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}

	d.Sessions = session.NewManager(session.Config{
		NewCart:   d.NewCart,
		Snapshots: snapshots,
		TTL:       cfg.SessionTTL,
		Logger:    &d.Logger,
	})
	return d, nil
}

// NewCart builds an empty cart wired to the shared resolvers and gateway.
func (d *Dependencies) NewCart() *cart.Store {
	taxRate := d.Config.TaxRate
	return cart.NewStore(cart.Config{
		Promo:    d.Promo,
		Shipping: d.Shipping,
		TaxRate:  &taxRate,
		Checkout: d.Checkout,
		Currency: d.Config.Currency,
	})
}

// Close releases network clients.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
}

// NewRedis connects to url with tracing and optionally metrics instrumentation.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
