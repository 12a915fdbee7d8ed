package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/jcmexdev/storefront-checkout/internal/config"
	paymentgateway "github.com/jcmexdev/storefront-checkout/internal/payment-gateway/app"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/cache"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/gatewayrpc"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGateway()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)

	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		SampleRatio: cfg.SampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}

	var idempotency cache.Cache
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		idempotency = cache.NewRedisCache(client, "payment-gateway")
	} else {
		slog.Warn("REDIS_ADDR not set, idempotency keys live in memory")
		idempotency = cache.NewMemoryCache("payment-gateway")
	}

	var notifier paymentgateway.Notifier
	if cfg.NotifyURL != "" {
		notifier = paymentgateway.NewHTTPNotifier(cfg.NotifyURL, cfg.NotifyTimeout)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.TraceServerInterceptor()),
	)
	sandbox := paymentgateway.NewServer(idempotency, notifier, paymentgateway.Config{DeclineAbove: cfg.DeclineAbove})
	gatewayrpc.RegisterGatewayServer(grpcServer, sandbox)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down payment gateway")
		grpcServer.GracefulStop()
	}()

	slog.Info("payment gateway gRPC running", "addr", addr, "decline_above", cfg.DeclineAbove.StringFixed(2), "notify_url", cfg.NotifyURL)

	if err := grpcServer.Serve(lis); err != nil {
		slog.Error("failed to serve", "error", err)
		os.Exit(1)
	}
	sandbox.Close()
}
