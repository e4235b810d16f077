package types

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewCreateOrderRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/orders", bytes.NewBufferString(`{"user_id":" u1 ","package_id":"pkg-1","payment_method":" QRIS "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetUserId() != "u1" || parsed.GetPackageId() != "pkg-1" || parsed.GetPaymentMethod() != "qris" {
		t.Fatalf("unexpected parsed request: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreateOrderValidate(t *testing.T) {
	req := &CreateOrderRequest{PackageId: "pkg-1", PaymentMethod: "card"}
	if err := req.Validate(); err == nil || err.Error() != "user_id is required" {
		t.Fatalf("expected user_id error, got %v", err)
	}

	req = &CreateOrderRequest{UserId: "u1", PackageId: "pkg-1", PaymentMethod: "cash"}
	err := req.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "payment_method must be one of") {
		t.Fatalf("expected payment_method error, got %v", err)
	}
	if !strings.Contains(err.Error(), "google_play") {
		t.Fatalf("expected every method listed, got %v", err)
	}
}

func TestGetOrderRequestValidate(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/orders/x", nil), httptest.NewRecorder())
	ctx.SetParamNames("id")
	ctx.SetParamValues("7F3A0000-0000-4000-8000-000000000001")

	parsed, err := NewGetOrderRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetId() != "7f3a0000-0000-4000-8000-000000000001" {
		t.Fatalf("expected lowercased id, got %q", parsed.GetId())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid id, got %v", err)
	}

	if err := (&GetOrderRequest{Id: "not-a-uuid"}).Validate(); err == nil || err.Error() != "id is invalid" {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestListOrdersRequestRequiresUser(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/orders", nil), httptest.NewRecorder())

	parsed, _ := NewListOrdersRequestFromContext(ctx)
	if err := parsed.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRegisterPushTokenValidate(t *testing.T) {
	req := &RegisterPushTokenRequest{UserId: "u1", Token: strings.Repeat("a", 513)}
	if err := req.Validate(); err == nil || err.Error() != "token must be at most 512 characters" {
		t.Fatalf("expected max length error, got %v", err)
	}

	req = &RegisterPushTokenRequest{UserId: "u1", Token: "fcm-token"}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}
