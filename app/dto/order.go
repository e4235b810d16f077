package dto

type OrderResponse struct {
	ID                         string  `json:"id"`
	UserID                     string  `json:"user_id"`
	PackageID                  string  `json:"package_id"`
	PaymentMethod              string  `json:"payment_method"`
	Subtotal                   int64   `json:"subtotal"`
	Tax                        int64   `json:"tax"`
	Total                      int64   `json:"total"`
	Currency                   string  `json:"currency"`
	Status                     string  `json:"status"`
	InvoiceURL                 *string `json:"invoice_url,omitempty"`
	AppleOriginalTransactionID *string `json:"apple_original_transaction_id,omitempty"`
	GooglePurchaseID           *string `json:"google_purchase_id,omitempty"`
	ExpiredAt                  *string `json:"expired_at,omitempty"`
	CreatedAt                  string  `json:"created_at"`
	UpdatedAt                  string  `json:"updated_at"`
}

type CreateOrderResponse struct {
	Order      OrderResponse `json:"order"`
	PaymentURL string        `json:"payment_url,omitempty"`
}

type OrderEnvelopeResponse struct {
	Order OrderResponse `json:"order"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type EntitlementResponse struct {
	UserID    string          `json:"user_id"`
	Active    bool            `json:"active"`
	ExpiresAt *string         `json:"expires_at,omitempty"`
	Orders    []OrderResponse `json:"orders"`
}

// WebhookAckResponse is returned to providers for every accepted delivery, replays included.
type WebhookAckResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
}
