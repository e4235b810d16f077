package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/dto"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"github.com/vibast-solutions/ms-go-fan-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"github.com/vibast-solutions/ms-go-fan-billing/app/types"
)

type OrderController struct {
	orderService       *service.OrderService
	entitlementService *service.EntitlementService
	logger             logrus.FieldLogger
}

func NewOrderController(orderService *service.OrderService, entitlementService *service.EntitlementService) *OrderController {
	return &OrderController{
		orderService:       orderService,
		entitlementService: entitlementService,
		logger:             factory.NewModuleLogger("orders-controller"),
	}
}

func (c *OrderController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *OrderController) CreateOrder(ctx echo.Context) error {
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.orderService.CreateOrder(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidPaymentMethod):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPackageNotFound):
			return writeError(ctx, http.StatusNotFound, "package not found")
		case errors.Is(err, service.ErrPaymentFailed):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Invoice creation failed")
			return writeError(ctx, http.StatusBadGateway, "payment gateway unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create order failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &dto.CreateOrderResponse{
		Order:      mapper.OrderToResponse(result.Order),
		PaymentURL: result.PaymentURL,
	})
}

func (c *OrderController) GetOrder(ctx echo.Context) error {
	req, err := types.NewGetOrderRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	order, err := c.orderService.GetOrder(ctx.Request().Context(), req.GetId())
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return writeError(ctx, http.StatusNotFound, "order not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get order failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &dto.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) ListOrders(ctx echo.Context) error {
	req, err := types.NewListOrdersRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	orders, err := c.orderService.ListOrders(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List orders failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &dto.ListOrdersResponse{Orders: mapper.OrdersToResponse(orders)})
}

func (c *OrderController) GetEntitlement(ctx echo.Context) error {
	req, err := types.NewEntitlementRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	entitlement, err := c.entitlementService.Entitlement(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get entitlement failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	resp := mapper.EntitlementToResponse(entitlement)
	return ctx.JSON(http.StatusOK, &resp)
}

func (c *OrderController) RegisterPushToken(ctx echo.Context) error {
	req, err := types.NewRegisterPushTokenRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.orderService.RegisterPushToken(ctx.Request().Context(), req); err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Register push token failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Push token registered"})
}

func (c *OrderController) UnregisterPushToken(ctx echo.Context) error {
	req, err := types.NewUnregisterPushTokenRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	removed, err := c.orderService.UnregisterPushToken(ctx.Request().Context(), req.GetToken())
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Unregister push token failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	if !removed {
		return writeError(ctx, http.StatusNotFound, "push token not found")
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Push token removed"})
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
