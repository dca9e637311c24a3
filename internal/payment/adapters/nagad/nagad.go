package nagad

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
	return "nagad"
}

func (f *Factory) New(cfg domain.AdapterConfig) (domain.Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	merchantID := strings.TrimSpace(cfg.Key)
	merchantKey := strings.TrimSpace(cfg.Secret)
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if baseURL == "" || merchantID == "" || merchantKey == "" || webhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL:       baseURL,
		merchantID:    merchantID,
		merchantKey:   merchantKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Adapter speaks the Nagad merchant checkout API.
type Adapter struct {
	baseURL       string
	merchantID    string
	merchantKey   string
	webhookSecret string
	client        *http.Client
}

func (a *Adapter) Provider() string { return "nagad" }

type checkoutRequest struct {
	MerchantID string `json:"merchantId"`
	OrderID    string `json:"orderId"`
	Amount     string `json:"amount"`
	Currency   string `json:"currencyCode"`
	Account    string `json:"payerAccountRef,omitempty"`
}

type completeRequest struct {
	MerchantID string `json:"merchantId"`
	PaymentRef string `json:"paymentRefId"`
	Amount     string `json:"amount"`
}

type refundRequest struct {
	MerchantID string `json:"merchantId"`
	PaymentRef string `json:"paymentRefId"`
	Amount     string `json:"amount"`
	Message    string `json:"message"`
}

type apiResponse struct {
	PaymentRefID string `json:"paymentRefId"`
	IssuerRefNo  string `json:"issuerPaymentRefNo"`
	Status       string `json:"status"`
	StatusCode   string `json:"statusCode"`
	Message      string `json:"message"`
}

func (a *Adapter) CreateIntent(ctx context.Context, req domain.GatewayIntentRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/api/dfs/check-out/initialize", checkoutRequest{
		MerchantID: a.merchantID,
		OrderID:    req.BookingID.String(),
		Amount:     req.Amount.StringFixed(2),
		Currency:   req.Currency,
		Account:    req.CustomerID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{
		GatewayRef: resp.PaymentRefID,
		Status:     resp.Status,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}, nil
}

func (a *Adapter) Capture(ctx context.Context, req domain.GatewayCaptureRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/api/dfs/check-out/complete", completeRequest{
		MerchantID: a.merchantID,
		PaymentRef: req.GatewayRef,
		Amount:     req.Amount.StringFixed(2),
	})
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "Success") {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, resp.Message)
	}
	return &domain.GatewayResult{
		GatewayRef: resp.PaymentRefID,
		Status:     resp.Status,
		Metadata: map[string]any{
			"status_code":   resp.StatusCode,
			"issuer_ref_no": resp.IssuerRefNo,
		},
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, req domain.GatewayRefundRequest) (*domain.GatewayResult, error) {
	resp, err := a.post(ctx, "/api/dfs/check-out/refund", refundRequest{
		MerchantID: a.merchantID,
		PaymentRef: req.GatewayRef,
		Amount:     req.Amount.StringFixed(2),
		Message:    req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{
		GatewayRef: resp.PaymentRefID,
		Status:     resp.Status,
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
	httpReq.Header.Set("X-KM-Api-Key", a.merchantKey)

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
