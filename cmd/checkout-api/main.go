package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/events"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/gateway"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/memory"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/postgres"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/rediscache"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/sqlite"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/cart"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/httpx"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
	"github.com/jcmexdev/storefront-checkout/internal/config"
	sagasqlite "github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/cache"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/gatewayrpc"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/sqlitedb"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCheckout()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)

	if err := run(ctx, cfg); err != nil {
		slog.Error("checkout api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Checkout) error {
	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		SampleRatio: cfg.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	orders, sagaLog, closeOrders, err := openOrders(ctx, cfg.OrdersDBPath)
	if err != nil {
		return err
	}
	defer closeOrders()

	catalog, promotions, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var (
		cartStore cart.Store
		kv        cache.Cache
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		cartStore = cart.NewRedisStore(client, "checkout")
		kv = cache.NewRedisCache(client, "checkout")
	} else {
		slog.Warn("REDIS_ADDR not set, carts and promotion cache live in memory")
		cartStore = cart.NewMemoryStore()
		kv = cache.NewMemoryCache("checkout")
	}

	engine := pricing.NewEngine(catalog,
		rediscache.NewPromotions(promotions, kv, cfg.PromotionsTTL),
		pricing.WithLocation(loc),
	)
	carts := cart.NewService(cartStore, catalog, engine)

	conn, err := gateway.Dial(cfg.PaymentGatewayAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	payments := gateway.NewClient(gatewayrpc.NewGatewayClient(conn), cfg.GatewayTimeout)

	var publisher app.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer kp.Close()
		publisher = kp
	} else {
		publisher = events.NewLogPublisher(slog.Default())
	}

	opts := []app.Option{app.WithEventPublisher(publisher), app.WithCurrency(cfg.Currency)}
	if sagaLog != nil {
		opts = append(opts, app.WithSagaLog(sagaLog), app.WithCheckoutLogReader(sagaLog))
	}
	svc := app.NewService(orders, carts, engine, payments, opts...)

	handler := httpx.NewHandler(carts, svc, httpx.Redirects{
		ConfirmationURL: cfg.ConfirmationURL,
		CheckoutURL:     cfg.CheckoutURL,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("checkout api running", "addr", srv.Addr, "gateway", cfg.PaymentGatewayAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down checkout api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openOrders returns the SQLite-backed order store and checkout log, or an
// in-memory store without a log when path is empty.
func openOrders(ctx context.Context, path string) (app.OrderRepository, *sagasqlite.Repository, func(), error) {
	if path == "" {
		slog.Warn("ORDERS_DB_PATH not set, orders live in memory")
		return memory.NewOrders(), nil, func() {}, nil
	}

	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("closing orders database", "error", err)
		}
	}

	orders, err := sqlite.NewOrderRepository(ctx, db)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	sagaLog, err := sagasqlite.New(ctx, db)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	return orders, sagaLog, closeDB, nil
}

// openCatalog prefers PostgreSQL. A seed file alone serves the catalog from
// memory; together with a DSN it is upserted into PostgreSQL at startup.
func openCatalog(ctx context.Context, cfg *config.Checkout) (pricing.Catalog, pricing.PromotionLookup, func(), error) {
	if cfg.PromotionsDSN == "" {
		catalog, promotions, err := memory.LoadSeedFile(cfg.CatalogSeedFile)
		if err != nil {
			return nil, nil, nil, err
		}
		return catalog, promotions, func() {}, nil
	}

	store, err := postgres.New(ctx, cfg.PromotionsDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	if cfg.CatalogSeedFile != "" {
		if err := seedStore(ctx, store, cfg.CatalogSeedFile); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
	}
	return store, store, store.Close, nil
}

func seedStore(ctx context.Context, store *postgres.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed %q: %w", path, err)
	}
	defer f.Close()

	seed, err := memory.DecodeSeed(f)
	if err != nil {
		return err
	}
	for _, p := range seed.Products {
		if err := store.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	valid, rejected := seed.ValidPromotions()
	if len(rejected) > 0 {
		slog.WarnContext(ctx, "ignoring malformed promotions in seed", "path", path, "promotion_ids", rejected)
	}
	for _, p := range valid {
		if err := store.UpsertPromotion(ctx, p); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "catalog seeded", "products", len(seed.Products), "promotions", len(valid))
	return nil
}
