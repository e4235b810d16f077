package cmd

import (
	"context"
	"crypto/x509"
	"database/sql"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/analytics"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/payment"
	"github.com/vibast-solutions/ms-go-fan-billing/app/provider/apple"
	"github.com/vibast-solutions/ms-go-fan-billing/app/provider/google"
	"github.com/vibast-solutions/ms-go-fan-billing/app/push"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"github.com/vibast-solutions/ms-go-fan-billing/config"

	_ "github.com/go-sql-driver/mysql"
)

type pushDispatcher interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
	NotifyExpired(ctx context.Context, tokens []string) error
}

type activationPublisher interface {
	PublishOrderActivated(ctx context.Context, order *entity.Order, idolID string) error
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func newPushDispatcher(ctx context.Context, cfg *config.Config) pushDispatcher {
	if cfg.Firebase.CredentialsFile == "" {
		logrus.Warn("FIREBASE_CREDENTIALS_FILE not set, push dispatch disabled")
		return push.NewNoopDispatcher()
	}
	dispatcher, err := push.NewFCMDispatcher(ctx, cfg.Firebase.CredentialsFile, push.ExpiryMessage{
		Title: cfg.Firebase.ExpiryTitle,
		Body:  cfg.Firebase.ExpiryBody,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize Firebase messaging")
	}
	return dispatcher
}

func newAnalyticsPublisher(ctx context.Context, cfg *config.Config) activationPublisher {
	if cfg.Analytics.QueueURL == "" {
		logrus.Warn("ANALYTICS_QUEUE_URL not set, analytics events disabled")
		return analytics.NewNoopPublisher()
	}
	client, err := analytics.NewSQSClient(ctx, cfg.Analytics.AWSRegion)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize SQS client")
	}
	return analytics.NewSQSPublisher(client, cfg.Analytics.QueueURL)
}

func newPaymentService(cfg *config.Config) payment.Service {
	if cfg.Invoice.APIBaseURL == "" || cfg.Invoice.SecretKey == "" {
		logrus.Warn("Invoice gateway not configured, checkout invoices disabled")
		return payment.NewStubService()
	}
	gateway, err := payment.NewInvoiceGateway(payment.InvoiceGatewayConfig{
		BaseURL:    cfg.Invoice.APIBaseURL,
		SecretKey:  cfg.Invoice.SecretKey,
		SuccessURL: cfg.Invoice.SuccessURL,
		FailureURL: cfg.Invoice.FailureURL,
		InvoiceTTL: cfg.Invoice.InvoiceTTL,
		Client:     &http.Client{Timeout: cfg.Invoice.HTTPTimeout},
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize invoice gateway")
	}
	return gateway
}

func newAppleVerifier(cfg *config.Config) *apple.Verifier {
	roots := x509.NewCertPool()
	if len(cfg.Apple.RootCAFiles) == 0 {
		logrus.Warn("APPLE_ROOT_CA_FILES not set, App Store notifications will be rejected")
	} else {
		loaded, err := apple.LoadRootCAs(cfg.Apple.RootCAFiles)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load Apple root certificates")
		}
		roots = loaded
	}

	verifier, err := apple.NewVerifier(apple.VerifierConfig{
		Roots:            roots,
		OnlineRevocation: cfg.Apple.OnlineRevocationCheck,
		HTTPClient:       &http.Client{Timeout: cfg.Apple.HTTPTimeout},
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize Apple verifier")
	}
	return verifier
}

type playLookup interface {
	GetSubscription(ctx context.Context, subscriptionID, purchaseToken string) (*google.SubscriptionPurchase, error)
}

func newPlayLookup(ctx context.Context, cfg *config.Config) playLookup {
	if cfg.Google.PackageName == "" {
		logrus.Warn("GOOGLE_PLAY_PACKAGE_NAME not set, Play purchases cannot be verified")
		return google.DisabledLookup{}
	}
	publisher, err := google.NewPublisher(ctx, google.PublisherConfig{
		PackageName:     cfg.Google.PackageName,
		CredentialsFile: cfg.Google.CredentialsFile,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize Android Publisher client")
	}
	return publisher
}

func newExpirySweeper(cfg *config.Config, db *sql.DB, dispatcher pushDispatcher) *service.ExpirySweeper {
	return service.NewExpirySweeper(
		repository.NewStore(db),
		repository.NewOrderRepository(db),
		service.NewLedger(cfg.Billing.RenewalPeriodMonths),
		dispatcher,
	)
}
