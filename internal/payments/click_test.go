package payments

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func signClick(req ClickRequest, serviceID, secret string) string {
	data := req.ClickTransID + serviceID + secret + req.MerchantTransID + req.Amount + req.Action + req.SignTime
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestClickVerifySignature(t *testing.T) {
	cfg := ClickConfig{ServiceID: "12345", SecretKey: "topsecret"}
	adapter := NewClickAdapter(cfg, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := ClickRequest{
		ClickTransID:    "987654",
		ServiceID:       cfg.ServiceID,
		MerchantTransID: "PAY-1A2B3C4D",
		Amount:          "20000.00",
		Action:          "0",
		SignTime:        "2026-01-15 10:30:00",
	}
	req.SignString = signClick(req, cfg.ServiceID, cfg.SecretKey)

	if !adapter.VerifySignature(req) {
		t.Fatal("expected valid signature to verify")
	}

	tampered := req
	tampered.Amount = "1.00"
	if adapter.VerifySignature(tampered) {
		t.Error("expected tampered amount to fail verification")
	}

	wrongSecret := NewClickAdapter(ClickConfig{ServiceID: cfg.ServiceID, SecretKey: "other"}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if wrongSecret.VerifySignature(req) {
		t.Error("expected different secret to fail verification")
	}
}

func TestParseClickRequest(t *testing.T) {
	form := url.Values{
		"click_trans_id":    {"987654"},
		"service_id":        {"12345"},
		"merchant_trans_id": {"PAY-1A2B3C4D"},
		"amount":            {"20000.00"},
		"action":            {"1"},
		"sign_time":         {"2026-01-15 10:30:00"},
		"sign_string":       {"abcdef"},
		"error":             {"-5017"},
		"click_paydoc_id":   {"777"},
	}

	r := httptest.NewRequest("POST", "/payments/click/complete", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := parseClickRequest(r)
	if err != nil {
		t.Fatalf("parseClickRequest returned error: %v", err)
	}

	if req.ClickTransID != "987654" {
		t.Errorf("ClickTransID = %q, want %q", req.ClickTransID, "987654")
	}
	if req.MerchantTransID != "PAY-1A2B3C4D" {
		t.Errorf("MerchantTransID = %q, want %q", req.MerchantTransID, "PAY-1A2B3C4D")
	}
	if req.Error != -5017 {
		t.Errorf("Error = %d, want %d", req.Error, -5017)
	}
	if req.ClickPaydocID != "777" {
		t.Errorf("ClickPaydocID = %q, want %q", req.ClickPaydocID, "777")
	}
}

func TestParseClickRequestBadErrorField(t *testing.T) {
	form := url.Values{
		"click_trans_id": {"987654"},
		"error":          {"not-a-number"},
	}

	r := httptest.NewRequest("POST", "/payments/click/complete", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := parseClickRequest(r); err == nil {
		t.Fatal("expected error for non-numeric error field")
	}
}
