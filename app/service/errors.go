package service

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrPackageNotFound      = errors.New("package not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrIllegalTransition    = errors.New("illegal order transition")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrPaymentFailed        = errors.New("payment gateway rejected the invoice")
)
