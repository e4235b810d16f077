package types

import (
	"strings"

	"github.com/labstack/echo/v4"
)

type CreateOrderRequest struct {
	UserId        string `json:"user_id" validate:"required,max=64"`
	PackageId     string `json:"package_id" validate:"required,max=64"`
	PaymentMethod string `json:"payment_method" validate:"required,payment_method"`
}

func (r *CreateOrderRequest) GetUserId() string        { return r.UserId }
func (r *CreateOrderRequest) GetPackageId() string     { return r.PackageId }
func (r *CreateOrderRequest) GetPaymentMethod() string { return r.PaymentMethod }

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.UserId = strings.TrimSpace(body.UserId)
	body.PackageId = strings.TrimSpace(body.PackageId)
	body.PaymentMethod = strings.ToLower(strings.TrimSpace(body.PaymentMethod))
	return &body, nil
}

func (r *CreateOrderRequest) Validate() error {
	return validateStruct(r)
}

type GetOrderRequest struct {
	Id string `json:"id" validate:"required,uuid"`
}

func (r *GetOrderRequest) GetId() string { return r.Id }

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	return &GetOrderRequest{Id: strings.ToLower(strings.TrimSpace(ctx.Param("id")))}, nil
}

func (r *GetOrderRequest) Validate() error {
	return validateStruct(r)
}

type ListOrdersRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
}

func (r *ListOrdersRequest) GetUserId() string { return r.UserId }

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	return &ListOrdersRequest{UserId: strings.TrimSpace(ctx.QueryParam("user_id"))}, nil
}

func (r *ListOrdersRequest) Validate() error {
	return validateStruct(r)
}

type EntitlementRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
}

func (r *EntitlementRequest) GetUserId() string { return r.UserId }

func NewEntitlementRequestFromContext(ctx echo.Context) (*EntitlementRequest, error) {
	return &EntitlementRequest{UserId: strings.TrimSpace(ctx.Param("user_id"))}, nil
}

func (r *EntitlementRequest) Validate() error {
	return validateStruct(r)
}

type RegisterPushTokenRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
	Token  string `json:"token" validate:"required,max=512"`
}

func (r *RegisterPushTokenRequest) GetUserId() string { return r.UserId }
func (r *RegisterPushTokenRequest) GetToken() string  { return r.Token }

func NewRegisterPushTokenRequestFromContext(ctx echo.Context) (*RegisterPushTokenRequest, error) {
	var body RegisterPushTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.UserId = strings.TrimSpace(body.UserId)
	body.Token = strings.TrimSpace(body.Token)
	return &body, nil
}

func (r *RegisterPushTokenRequest) Validate() error {
	return validateStruct(r)
}

type UnregisterPushTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

func (r *UnregisterPushTokenRequest) GetToken() string { return r.Token }

func NewUnregisterPushTokenRequestFromContext(ctx echo.Context) (*UnregisterPushTokenRequest, error) {
	return &UnregisterPushTokenRequest{Token: strings.TrimSpace(ctx.Param("token"))}, nil
}

func (r *UnregisterPushTokenRequest) Validate() error {
	return validateStruct(r)
}
