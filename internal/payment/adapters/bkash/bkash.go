package bkash

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kormohq/kormo/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "bkash"
}

func (f *Factory) New(cfg domain.AdapterConfig) (domain.Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	key := strings.TrimSpace(cfg.Key)
	secret := strings.TrimSpace(cfg.Secret)
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if baseURL == "" || key == "" || secret == "" || webhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL:       baseURL,
		appKey:        key,
		appSecret:     secret,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Adapter speaks the bKash tokenized checkout API. Amounts go over the wire
// as decimal strings; bKash only settles BDT.
type Adapter struct {
	baseURL       string
	appKey        string
	appSecret     string
	webhookSecret string
	client        *http.Client
}

func (a *Adapter) Provider() string { return "bkash" }

type createRequest struct {
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	PayerReference        string `json:"payerReference"`
}

type executeRequest struct {
	PaymentID string `json:"paymentID"`
}

type refundRequest struct {
	PaymentID string `json:"paymentID"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	SKU       string `json:"sku"`
}

type apiResponse struct {
	PaymentID         string `json:"paymentID"`
	RefundTrxID       string `json:"refundTrxID"`
	TransactionStatus string `json:"transactionStatus"`
	StatusCode        string `json:"statusCode"`
	StatusMessage     string `json:"statusMessage"`
}

func (a *Adapter) CreateIntent(ctx context.Context, req domain.GatewayIntentRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/tokenized/checkout/create", createRequest{
		Amount:                req.Amount.StringFixed(2),
		Currency:              req.Currency,
		Intent:                "sale",
		MerchantInvoiceNumber: req.BookingID.String(),
		PayerReference:        req.CustomerID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{
		GatewayRef: resp.PaymentID,
		Status:     resp.TransactionStatus,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}, nil
}

func (a *Adapter) Capture(ctx context.Context, req domain.GatewayCaptureRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/tokenized/checkout/execute", executeRequest{
		PaymentID: req.GatewayRef,
	})
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.TransactionStatus, "Completed") {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, resp.StatusMessage)
	}
	return &domain.GatewayResult{
		GatewayRef: resp.PaymentID,
		Status:     resp.TransactionStatus,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, req domain.GatewayRefundRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/tokenized/checkout/payment/refund", refundRequest{
		PaymentID: req.GatewayRef,
		Amount:    req.Amount.StringFixed(2),
		Reason:    req.Reason,
		SKU:       "booking",
	})
	if err != nil {
		return nil, err
	}
	ref := resp.RefundTrxID
	if ref == "" {
		ref = resp.PaymentID
	}
	return &domain.GatewayResult{
		GatewayRef: ref,
		Status:     resp.TransactionStatus,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}, nil
}

func (a *Adapter) VerifyWebhook(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

func (a *Adapter) post(ctx context.Context, path string, body any) (*apiResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-App-Key", a.appKey)
	httpReq.Header.Set("Authorization", a.appSecret)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.ErrGatewayTimeout
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", domain.ErrGatewayDeclined, httpResp.StatusCode)
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
