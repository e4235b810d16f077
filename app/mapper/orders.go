package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/dto"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
)

func OrderToResponse(item *entity.Order) dto.OrderResponse {
	if item == nil {
		return dto.OrderResponse{}
	}

	return dto.OrderResponse{
		ID:                         item.ID,
		UserID:                     item.UserID,
		PackageID:                  item.PackageID,
		PaymentMethod:              string(item.PaymentMethod),
		Subtotal:                   item.Subtotal,
		Tax:                        item.Tax,
		Total:                      item.Total,
		Currency:                   item.Currency,
		Status:                     string(item.Status),
		InvoiceURL:                 item.InvoiceURL,
		AppleOriginalTransactionID: item.AppleOriginalTransactionID,
		GooglePurchaseID:           item.GooglePurchaseID,
		ExpiredAt:                  formatTime(item.ExpiredAt),
		CreatedAt:                  item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:                  item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func OrdersToResponse(items []*entity.Order) []dto.OrderResponse {
	result := make([]dto.OrderResponse, 0, len(items))
	for _, item := range items {
		result = append(result, OrderToResponse(item))
	}
	return result
}

func EntitlementToResponse(item *service.Entitlement) dto.EntitlementResponse {
	return dto.EntitlementResponse{
		UserID:    item.UserID,
		Active:    item.Active,
		ExpiresAt: formatTime(item.ExpiresAt),
		Orders:    OrdersToResponse(item.Orders),
	}
}

// WebhookAck summarises a reconcile outcome for the provider.
func WebhookAck(outcome *service.Outcome) dto.WebhookAckResponse {
	switch {
	case outcome == nil:
		return dto.WebhookAckResponse{Status: "accepted"}
	case outcome.Replayed:
		return dto.WebhookAckResponse{Status: "duplicate"}
	case outcome.Ignored:
		return dto.WebhookAckResponse{Status: "ignored", OrderID: outcome.OrderID}
	case outcome.Deleted:
		return dto.WebhookAckResponse{Status: "deleted", OrderID: outcome.OrderID}
	default:
		return dto.WebhookAckResponse{Status: string(outcome.Status), OrderID: outcome.OrderID}
	}
}

func formatTime(v *time.Time) *string {
	if v == nil {
		return nil
	}
	formatted := v.UTC().Format(time.RFC3339)
	return &formatted
}
