package payment

import "context"

// StubService is used when no invoicing gateway credentials are configured.
type StubService struct{}

func NewStubService() *StubService {
	return &StubService{}
}

func (s *StubService) CreateInvoice(_ context.Context, _ InvoiceRequest) Result {
	return Result{Type: ResultTypeFailure, Error: "invoice gateway is not configured"}
}
