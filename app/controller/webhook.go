package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"github.com/vibast-solutions/ms-go-fan-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
)

const (
	headerCallbackToken = "x-callback-token"
	headerWebhookID     = "webhook-id"
)

type invoiceWebhookHandler interface {
	HandleInvoiceCallback(ctx context.Context, callbackToken string, body []byte) (*service.Outcome, error)
	HandleRecurringCallback(ctx context.Context, callbackToken, webhookID string, body []byte) (*service.Outcome, error)
}

type appleWebhookHandler interface {
	HandleNotification(ctx context.Context, body []byte) (*service.Outcome, error)
}

type googleWebhookHandler interface {
	HandlePush(ctx context.Context, authorization string, body []byte) (*service.Outcome, error)
}

type WebhookController struct {
	invoice invoiceWebhookHandler
	apple   appleWebhookHandler
	google  googleWebhookHandler
	logger  logrus.FieldLogger
}

func NewWebhookController(invoice invoiceWebhookHandler, apple appleWebhookHandler, google googleWebhookHandler) *WebhookController {
	return &WebhookController{
		invoice: invoice,
		apple:   apple,
		google:  google,
		logger:  factory.NewModuleLogger("webhooks-controller"),
	}
}

func (c *WebhookController) InvoiceCallback(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.invoice.HandleInvoiceCallback(ctx.Request().Context(), ctx.Request().Header.Get(headerCallbackToken), body)
	return c.respond(ctx, "invoice", outcome, err)
}

func (c *WebhookController) RecurringCallback(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	header := ctx.Request().Header
	outcome, err := c.invoice.HandleRecurringCallback(ctx.Request().Context(), header.Get(headerCallbackToken), header.Get(headerWebhookID), body)
	return c.respond(ctx, "invoice_recurring", outcome, err)
}

func (c *WebhookController) AppleNotification(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.apple.HandleNotification(ctx.Request().Context(), body)
	return c.respond(ctx, "apple", outcome, err)
}

func (c *WebhookController) GooglePush(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.google.HandlePush(ctx.Request().Context(), ctx.Request().Header.Get(echo.HeaderAuthorization), body)
	return c.respond(ctx, "google", outcome, err)
}

func (c *WebhookController) respond(ctx echo.Context, provider string, outcome *service.Outcome, err error) error {
	logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider", provider)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthorized):
			logger.WithError(err).Warn("Webhook rejected")
			return writeError(ctx, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidStatus):
			logger.WithError(err).Warn("Webhook rejected")
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderNotFound):
			logger.WithError(err).Warn("Webhook order not found")
			return writeError(ctx, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrUpstreamUnavailable):
			logger.WithError(err).Warn("Webhook verification upstream unavailable")
			return writeError(ctx, http.StatusServiceUnavailable, "upstream unavailable")
		default:
			logger.WithError(err).Error("Webhook processing failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	ack := mapper.WebhookAck(outcome)
	logger.WithFields(logrus.Fields{"status": ack.Status, "order_id": ack.OrderID}).Info("webhook_processed")
	return ctx.JSON(http.StatusOK, &ack)
}
