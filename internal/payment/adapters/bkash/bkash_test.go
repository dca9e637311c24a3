package bkash

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/kormohq/kormo/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewFactory().New(domain.AdapterConfig{
		BaseURL:       srv.URL,
		Key:           "app-key",
		Secret:        "app-secret",
		WebhookSecret: "hook-secret",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return gw.(*Adapter), srv
}

func TestFactoryRejectsIncompleteConfig(t *testing.T) {
	cases := []domain.AdapterConfig{
		{},
		{BaseURL: "https://bkash.test", Key: "k", Secret: "s"},
		{BaseURL: "https://bkash.test", Key: "k", WebhookSecret: "w"},
		{BaseURL: "  ", Key: "k", Secret: "s", WebhookSecret: "w"},
	}
	for i, cfg := range cases {
		if _, err := NewFactory().New(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("case %d: want ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestCreateIntentSendsFixedPointAmount(t *testing.T) {
	var got createRequest
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tokenized/checkout/create" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-App-Key") != "app-key" {
			t.Fatalf("missing app key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(apiResponse{
			PaymentID:         "TRX001",
			TransactionStatus: "Initiated",
			StatusCode:        "0000",
		})
	})

	res, err := adapter.CreateIntent(context.Background(), domain.GatewayIntentRequest{
		BookingID:  snowflake.ID(42),
		CustomerID: snowflake.ID(7),
		Amount:     decimal.RequireFromString("1250.5"),
		Currency:   "BDT",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if got.Amount != "1250.50" {
		t.Fatalf("want wire amount 1250.50, got %q", got.Amount)
	}
	if got.Intent != "sale" || got.MerchantInvoiceNumber != "42" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if res.GatewayRef != "TRX001" || res.Status != "Initiated" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCaptureDeclinedStatus(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{
			PaymentID:         "TRX001",
			TransactionStatus: "Failed",
			StatusMessage:     "insufficient balance",
		})
	})

	_, err := adapter.Capture(context.Background(), domain.GatewayCaptureRequest{
		GatewayRef: "TRX001",
		Amount:     decimal.RequireFromString("100"),
		Currency:   "BDT",
	})
	if !errors.Is(err, domain.ErrGatewayDeclined) {
		t.Fatalf("want ErrGatewayDeclined, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("want provider message in error, got %v", err)
	}
}

func TestCaptureNonOKHTTPStatusIsDeclined(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := adapter.Capture(context.Background(), domain.GatewayCaptureRequest{
		GatewayRef: "TRX001",
		Amount:     decimal.RequireFromString("100"),
		Currency:   "BDT",
	})
	if !errors.Is(err, domain.ErrGatewayDeclined) {
		t.Fatalf("want ErrGatewayDeclined, got %v", err)
	}
}

func TestRefundFallsBackToPaymentRef(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{
			PaymentID:         "TRX001",
			TransactionStatus: "Completed",
		})
	})

	res, err := adapter.Refund(context.Background(), domain.GatewayRefundRequest{
		GatewayRef: "TRX001",
		Amount:     decimal.RequireFromString("100"),
		Currency:   "BDT",
		Reason:     "booking rejected",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.GatewayRef != "TRX001" {
		t.Fatalf("want fallback ref TRX001, got %q", res.GatewayRef)
	}
}

func TestVerifyWebhook(t *testing.T) {
	adapter := &Adapter{webhookSecret: "hook-secret"}
	payload := []byte(`{"event_id":"evt-1","status":"Completed"}`)

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !adapter.VerifyWebhook(payload, sig) {
		t.Fatalf("valid signature rejected")
	}
	if !adapter.VerifyWebhook(payload, strings.ToUpper(sig)) {
		t.Fatalf("uppercase hex signature rejected")
	}
	if adapter.VerifyWebhook(payload, "") {
		t.Fatalf("empty signature accepted")
	}
	if adapter.VerifyWebhook([]byte(`tampered`), sig) {
		t.Fatalf("tampered payload accepted")
	}
}
