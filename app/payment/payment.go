package payment

import "context"

type ResultType string

const (
	ResultTypeSuccess  ResultType = "success"
	ResultTypeRedirect ResultType = "redirect"
	ResultTypeFailure  ResultType = "failure"
)

type Result struct {
	Type          ResultType
	TransactionID string
	PaymentURL    string
	Error         string
}

type InvoiceRequest struct {
	ExternalID     string
	Amount         int64
	Currency       string
	Description    string
	PayerID        string
	PaymentMethods []string
}

type Service interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) Result
}
