package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-fan-billing/app/controller"
	grpcserver "github.com/vibast-solutions/ms-go-fan-billing/app/grpc"
	"github.com/vibast-solutions/ms-go-fan-billing/app/middleware"
	"github.com/vibast-solutions/ms-go-fan-billing/app/provider/apple"
	"github.com/vibast-solutions/ms-go-fan-billing/app/provider/google"
	"github.com/vibast-solutions/ms-go-fan-billing/app/provider/invoice"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"github.com/vibast-solutions/ms-go-fan-billing/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) server for checkout and payment webhooks and the gRPC entitlement server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	dispatcher := newPushDispatcher(ctx, cfg)
	publisher := newAnalyticsPublisher(ctx, cfg)

	orderRepo := repository.NewOrderRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	pushTokenRepo := repository.NewPushTokenRepository(db)
	store := repository.NewStore(db)
	ledger := service.NewLedger(cfg.Billing.RenewalPeriodMonths)

	reconciler := service.NewReconciler(store, ledger, packageRepo, pushTokenRepo, dispatcher, publisher, cfg.Billing.SideEffectTimeout)

	invoiceAdapter := invoice.NewAdapter(reconciler, cfg.Invoice.CallbackToken)
	appleAdapter := apple.NewAdapter(newAppleVerifier(cfg), reconciler, cfg.Apple.BundleID)
	googleAdapter := google.NewAdapter(newPlayLookup(ctx, cfg), reconciler, google.AdapterConfig{
		PackageName:        cfg.Google.PackageName,
		PushAudience:       cfg.Google.PushAudience,
		PushServiceAccount: cfg.Google.PushServiceAccount,
	})

	orderService := service.NewOrderService(orderRepo, packageRepo, pushTokenRepo, newPaymentService(cfg), cfg.Billing.TaxRateBasisPoints)
	entitlementService := service.NewEntitlementService(orderRepo)

	orderController := controller.NewOrderController(orderService, entitlementService)
	webhookController := controller.NewWebhookController(invoiceAdapter, appleAdapter, googleAdapter)
	grpcEntitlementServer := grpcserver.NewServer(entitlementService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()
	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	limiterStore, closeLimiter := newRateLimiterStore(cfg)
	defer closeLimiter()

	e := setupHTTPServer(cfg, orderController, webhookController, echoInternalAuthMiddleware, middleware.RateLimit(limiterStore))
	grpcSrv, lis := setupGRPCServer(cfg, grpcEntitlementServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	if cfg.Jobs.ExpirySweepInProcess {
		sweeper := newExpirySweeper(cfg, db, dispatcher)
		quit := make(chan os.Signal, 1)
		go runWorker("sweep_expired", cfg.Jobs.ExpirySweepInterval, quit, sweeper.RunExpirationBatch)
		defer close(quit)
	}

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func newRateLimiterStore(cfg *config.Config) (echomiddleware.RateLimiterStore, func()) {
	limits := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Window:            time.Second,
		Prefix:            "fanbilling:ratelimit",
	}
	if cfg.RateLimit.RedisAddr == "" {
		return middleware.NewMemoryRateLimiterStore(limits), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	return middleware.NewRedisRateLimiterStore(client, limits), func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
}

func setupHTTPServer(
	cfg *config.Config,
	orderController *controller.OrderController,
	webhookController *controller.WebhookController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	webhookRateLimit echo.MiddlewareFunc,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string {
			return fmt.Sprintf("rest-%s", uuid.New().String())
		},
	}))
	e.Use(echomiddleware.BodyLimit(cfg.App.BodyLimit))

	e.GET("/health", orderController.Health)

	registerWebhookRoutes(e, webhookController, webhookRateLimit)

	requireInternal := internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName)

	orders := e.Group("/orders", requireInternal)
	orders.POST("", orderController.CreateOrder)
	orders.GET("", orderController.ListOrders)
	orders.GET("/:id", orderController.GetOrder)

	e.GET("/users/:user_id/entitlement", orderController.GetEntitlement, requireInternal)

	pushTokens := e.Group("/push-tokens", requireInternal)
	pushTokens.POST("", orderController.RegisterPushToken)
	pushTokens.DELETE("/:token", orderController.UnregisterPushToken)

	return e
}

// registerWebhookRoutes mounts the provider endpoints without internal auth.
// Only the invoice callbacks are rate limited; App Store and Play deliveries
// are verified before any ledger access and burst from a few provider addresses.
func registerWebhookRoutes(e *echo.Echo, webhooks *controller.WebhookController, rateLimit echo.MiddlewareFunc) {
	group := e.Group("/webhooks")
	group.POST("/invoice", webhooks.InvoiceCallback, rateLimit)
	group.POST("/invoice/recurring", webhooks.RecurringCallback, rateLimit)
	group.POST("/apple", webhooks.AppleNotification)
	group.POST("/google", webhooks.GooglePush)
}

func setupGRPCServer(
	cfg *config.Config,
	entitlementServer *grpcserver.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoveryInterceptor(),
			grpcserver.RequestIDInterceptor(),
			grpcserver.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	grpcserver.RegisterEntitlementServiceServer(grpcSrv, entitlementServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(grpcserver.EntitlementServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return grpcSrv, lis
}
