package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

type InvoiceGatewayConfig struct {
	BaseURL    string
	SecretKey  string
	SuccessURL string
	FailureURL string
	InvoiceTTL time.Duration
	Client     *http.Client
}

// InvoiceGateway creates hosted invoices on the generic invoicing provider.
type InvoiceGateway struct {
	baseURL    *url.URL
	secretKey  string
	successURL string
	failureURL string
	invoiceTTL time.Duration
	httpClient *http.Client
}

func NewInvoiceGateway(cfg InvoiceGatewayConfig) (*InvoiceGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("invoice gateway: base url and secret key are required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	return &InvoiceGateway{
		baseURL:    u,
		secretKey:  cfg.SecretKey,
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
		invoiceTTL: cfg.InvoiceTTL,
		httpClient: client,
	}, nil
}

type createInvoiceRequest struct {
	ExternalID         string   `json:"external_id"`
	Amount             int64    `json:"amount"`
	Currency           string   `json:"currency,omitempty"`
	Description        string   `json:"description,omitempty"`
	PayerID            string   `json:"customer_id,omitempty"`
	PaymentMethods     []string `json:"payment_methods,omitempty"`
	InvoiceDuration    int64    `json:"invoice_duration,omitempty"`
	SuccessRedirectURL string   `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string   `json:"failure_redirect_url,omitempty"`
}

type createInvoiceResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
}

func (g *InvoiceGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) Result {
	body, err := json.Marshal(createInvoiceRequest{
		ExternalID:         req.ExternalID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Description:        req.Description,
		PayerID:            req.PayerID,
		PaymentMethods:     req.PaymentMethods,
		InvoiceDuration:    int64(g.invoiceTTL / time.Second),
		SuccessRedirectURL: g.successURL,
		FailureRedirectURL: g.failureURL,
	})
	if err != nil {
		return failure(fmt.Errorf("encode invoice: %w", err))
	}

	endpoint := *g.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/v2/invoices")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("build invoice request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.secretKey, "")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return failure(fmt.Errorf("invoice request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return failure(fmt.Errorf("invoice rejected: %s %s", resp.Status, strings.TrimSpace(string(b))))
	}

	var out createInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failure(fmt.Errorf("decode invoice: %w", err))
	}
	if strings.TrimSpace(out.InvoiceURL) == "" {
		return failure(fmt.Errorf("invoice response has no invoice_url"))
	}

	return Result{
		Type:          ResultTypeRedirect,
		TransactionID: out.ID,
		PaymentURL:    out.InvoiceURL,
	}
}

func failure(err error) Result {
	return Result{Type: ResultTypeFailure, Error: err.Error()}
}
