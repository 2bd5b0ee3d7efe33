package wechatpay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/constants"
)

func newTestConfig(t *testing.T, baseURL string) (*Config, *rsa.PrivateKey) {
	t.Helper()
	key, keyPEM := buildTestPrivateKey()
	cfg := ConfigFrom(config.WechatPayConfig{
		AppID:              " wx1234567890 ",
		MerchantID:         "1900000109",
		MerchantSerialNo:   "ABC123456789",
		MerchantPrivateKey: keyPEM,
		APIV3Key:           "12345678901234567890123456789012",
		NotifyURL:          "https://example.com/api/v1/notify/payment",
		RefundNotifyURL:    "https://example.com/api/v1/notify/refund",
		BaseURL:            baseURL,
	})
	return cfg, key
}

func TestConfigFromNormalizes(t *testing.T) {
	cfg, _ := newTestConfig(t, "")
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("base url should fallback to default, got %s", cfg.BaseURL)
	}
	if cfg.AppID != "wx1234567890" {
		t.Fatalf("appid should be trimmed, got %q", cfg.AppID)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestValidateConfigRejectsInvalid(t *testing.T) {
	cfg, _ := newTestConfig(t, "")
	cfg.APIV3Key = "short-key"
	if err := ValidateConfig(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected invalid api_v3_key error, got %v", err)
	}

	cfg, _ = newTestConfig(t, "")
	cfg.MerchantID = ""
	if err := ValidateConfig(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected missing mchid error, got %v", err)
	}

	cfg, _ = newTestConfig(t, "")
	cfg.MerchantPrivateKey = "not-a-key"
	if _, err := New(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected private key error, got %v", err)
	}
}

func TestInitiatePaymentJSAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != jsapiPath {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
		if payload["out_trade_no"] != "MN20260101120000123456" {
			t.Errorf("unexpected out_trade_no: %v", payload["out_trade_no"])
		}
		amount, _ := payload["amount"].(map[string]interface{})
		if amount["total"] != float64(10050) || amount["currency"] != "CNY" {
			t.Errorf("unexpected amount: %v", amount)
		}
		payer, _ := payload["payer"].(map[string]interface{})
		if payer["openid"] != "openid-1" {
			t.Errorf("unexpected payer: %v", payer)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prepay_id":"wx201410272009395522657a690389285100"}`))
	}))
	defer server.Close()

	cfg, key := newTestConfig(t, server.URL)
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	client.now = func() time.Time { return time.Unix(1700000000, 0) }

	params, err := client.InitiatePayment(context.Background(), "MN20260101120000123456", 10050, "openid-1")
	if err != nil {
		t.Fatalf("initiate payment failed: %v", err)
	}
	if params.Package != "prepay_id=wx201410272009395522657a690389285100" {
		t.Fatalf("unexpected package: %s", params.Package)
	}
	if params.TimeStamp != "1700000000" || params.SignType != "RSA" || params.AppID != "wx1234567890" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if len(params.NonceStr) != 32 {
		t.Fatalf("nonce should be 32 chars, got %q", params.NonceStr)
	}

	message := params.AppID + "\n" + params.TimeStamp + "\n" + params.NonceStr + "\n" + params.Package + "\n"
	sig, err := base64.StdEncoding.DecodeString(params.PaySign)
	if err != nil {
		t.Fatalf("decode pay sign failed: %v", err)
	}
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("pay sign does not verify: %v", err)
	}
}

func TestInitiatePaymentRejectsInvalidInput(t *testing.T) {
	cfg, _ := newTestConfig(t, "")
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.InitiatePayment(context.Background(), "MN1", 100, ""); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("missing payer should be rejected, got %v", err)
	}
	if _, err := client.InitiatePayment(context.Background(), "MN1", 0, "openid"); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("zero amount should be rejected, got %v", err)
	}
}

func TestInitiateRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != refundPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["out_refund_no"] != "RF_MN1" || payload["transaction_id"] != "4200000001" {
			t.Errorf("unexpected refund payload: %v", payload)
		}
		if payload["notify_url"] != "https://example.com/api/v1/notify/refund" {
			t.Errorf("unexpected notify_url: %v", payload["notify_url"])
		}
		amount, _ := payload["amount"].(map[string]interface{})
		if amount["refund"] != float64(500) || amount["total"] != float64(500) {
			t.Errorf("unexpected refund amount: %v", amount)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"50000000382019052709732678859","status":"PROCESSING"}`))
	}))
	defer server.Close()

	cfg, _ := newTestConfig(t, server.URL)
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	handle, err := client.InitiateRefund(context.Background(), "4200000001", "RF_MN1", 500, 500)
	if err != nil {
		t.Fatalf("initiate refund failed: %v", err)
	}
	if handle.RefundID != "50000000382019052709732678859" || handle.Status != "PROCESSING" {
		t.Fatalf("unexpected refund handle: %+v", handle)
	}
	if _, err := client.InitiateRefund(context.Background(), "4200000001", "RF_MN1", 600, 500); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("refund above total should be rejected, got %v", err)
	}
}

func TestGatewayErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_REQUEST","message":"bad"}`))
	}))
	defer server.Close()

	cfg, _ := newTestConfig(t, server.URL)
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.InitiatePayment(context.Background(), "MN2", 100, "openid"); !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected ErrResponseInvalid, got %v", err)
	}
}

func TestBuildRefundNotification(t *testing.T) {
	n, err := buildRefundNotification(&refundNotifyResource{
		OutTradeNo:   "MN1",
		OutRefundNo:  " RF_MN1 ",
		RefundID:     "5000001",
		RefundStatus: "success",
		SuccessTime:  "2026-01-01T12:00:00+08:00",
	})
	if err != nil {
		t.Fatalf("build refund notification failed: %v", err)
	}
	if n.RefundOrderRef != "RF_MN1" || n.Outcome != constants.NotifyOutcomeSuccess || n.TransactionID != "5000001" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.RefundedAt == nil {
		t.Fatalf("success time should be parsed")
	}

	n, err = buildRefundNotification(&refundNotifyResource{OutRefundNo: "RF_MN2", RefundStatus: "ABNORMAL"})
	if err != nil || n.Outcome != constants.NotifyOutcomeFailure {
		t.Fatalf("abnormal refund should map to failure: %+v %v", n, err)
	}
	if _, err := buildRefundNotification(&refundNotifyResource{}); !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("missing out_refund_no should be rejected, got %v", err)
	}
}

func TestToOutcome(t *testing.T) {
	cases := map[string]string{
		"SUCCESS":  constants.NotifyOutcomeSuccess,
		" success": constants.NotifyOutcomeSuccess,
		"CLOSED":   constants.NotifyOutcomeFailure,
		"PAYERROR": constants.NotifyOutcomeFailure,
		"":         constants.NotifyOutcomeFailure,
	}
	for state, want := range cases {
		if got := toOutcome(state); got != want {
			t.Fatalf("state %q: want %s got %s", state, want, got)
		}
	}
}

func buildTestPrivateKey() (*rsa.PrivateKey, string) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	privateKeyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		panic(err)
	}
	return privateKey, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyDER}))
}
