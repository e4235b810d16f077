package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/payment"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
)

type createOrderRequest interface {
	GetUserId() string
	GetPackageId() string
	GetPaymentMethod() string
}

type registerPushTokenRequest interface {
	GetUserId() string
	GetToken() string
}

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Order, error)
}

type pushTokenRepository interface {
	Upsert(ctx context.Context, userID, token string, now time.Time) error
	DeleteByToken(ctx context.Context, token string) (int64, error)
}

type CreateOrderResult struct {
	Order      *entity.Order
	PaymentURL string
}

type OrderService struct {
	orderRepo      orderRepository
	packageRepo    packageFinder
	pushTokenRepo  pushTokenRepository
	paymentService payment.Service
	taxBasisPoints int64
	newID          func() string
	now            func() time.Time
}

func NewOrderService(
	orderRepo orderRepository,
	packageRepo packageFinder,
	pushTokenRepo pushTokenRepository,
	paymentService payment.Service,
	taxBasisPoints int64,
) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		packageRepo:    packageRepo,
		pushTokenRepo:  pushTokenRepo,
		paymentService: paymentService,
		taxBasisPoints: taxBasisPoints,
		newID:          uuid.NewString,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, req createOrderRequest) (*CreateOrderResult, error) {
	method, ok := entity.ParsePaymentMethod(strings.TrimSpace(req.GetPaymentMethod()))
	if !ok {
		return nil, ErrInvalidPaymentMethod
	}

	pkg, err := s.packageRepo.FindByID(ctx, strings.TrimSpace(req.GetPackageId()))
	if err != nil {
		return nil, err
	}
	if pkg == nil || pkg.Status != entity.PackageStatusActive {
		return nil, ErrPackageNotFound
	}

	now := s.now()
	tax := CalculateTax(pkg.Price, s.taxBasisPoints)
	order := &entity.Order{
		ID:            s.newID(),
		UserID:        strings.TrimSpace(req.GetUserId()),
		PackageID:     pkg.ID,
		PaymentMethod: method,
		Subtotal:      pkg.Price,
		Tax:           tax,
		Total:         pkg.Price + tax,
		Currency:      pkg.Currency,
		Status:        entity.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	result := &CreateOrderResult{Order: order}
	if method.Provider() != entity.ProviderInvoice {
		return result, nil
	}

	payResult, err := s.createInvoiceSafely(ctx, payment.InvoiceRequest{
		ExternalID:     order.ID,
		Amount:         order.Total,
		Currency:       order.Currency,
		Description:    pkg.Name,
		PayerID:        order.UserID,
		PaymentMethods: []string{strings.ToUpper(string(method))},
	})
	if err != nil {
		return nil, err
	}

	switch payResult.Type {
	case payment.ResultTypeRedirect, payment.ResultTypeSuccess:
		if payResult.PaymentURL == "" {
			return result, nil
		}
		invoiceURL := payResult.PaymentURL
		order.InvoiceURL = &invoiceURL
		order.UpdatedAt = s.now()
		if err := s.orderRepo.Update(ctx, order); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		result.PaymentURL = invoiceURL
	default:
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, payResult.Error)
	}

	return result, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]*entity.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.orderRepo.ListByUser(ctx, userID)
}

func (s *OrderService) RegisterPushToken(ctx context.Context, req registerPushTokenRequest) error {
	return s.pushTokenRepo.Upsert(ctx, strings.TrimSpace(req.GetUserId()), strings.TrimSpace(req.GetToken()), s.now())
}

func (s *OrderService) UnregisterPushToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}
	removed, err := s.pushTokenRepo.DeleteByToken(ctx, token)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// CalculateTax truncates to whole minor units.
func CalculateTax(subtotal, basisPoints int64) int64 {
	if subtotal <= 0 || basisPoints <= 0 {
		return 0
	}
	return subtotal * basisPoints / 10000
}

func (s *OrderService) createInvoiceSafely(ctx context.Context, req payment.InvoiceRequest) (_ payment.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("invoice creation failed: %v", rec)
		}
	}()

	return s.paymentService.CreateInvoice(ctx, req), nil
}
