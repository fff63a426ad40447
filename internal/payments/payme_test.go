package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func paymeTestAdapter(secret string) *PaymeAdapter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPaymeAdapter(PaymeConfig{SecretKey: secret}, nil, nil, logger)
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestPaymeAuthorize(t *testing.T) {
	adapter := paymeTestAdapter("s3cret")

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid credentials", basicAuth("Paycom", "s3cret"), true},
		{"wrong password", basicAuth("Paycom", "wrong"), false},
		{"wrong user", basicAuth("Merchant", "s3cret"), false},
		{"empty header", "", false},
		{"not basic", "Bearer s3cret", false},
		{"invalid base64", "Basic %%%", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.Authorize(tt.header); got != tt.want {
				t.Errorf("Authorize(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestPaymeUnknownMethod(t *testing.T) {
	adapter := paymeTestAdapter("s3cret")

	req := PaymeRequest{ID: json.RawMessage(`42`), Method: "GetStatement"}
	resp := adapter.Handle(context.Background(), req)

	if resp.Error == nil {
		t.Fatal("expected error response for unknown method")
	}
	if resp.Error.Code != paymeErrMethod {
		t.Errorf("error code = %d, want %d", resp.Error.Code, paymeErrMethod)
	}
	if string(resp.ID) != "42" {
		t.Errorf("response id = %s, want request id echoed back", resp.ID)
	}
}

func TestPaymeRequestDecoding(t *testing.T) {
	raw := `{
		"id": "req-1",
		"method": "CreateTransaction",
		"params": {
			"id": "617bc3f0e1b2c4d5a6f70001",
			"time": 1737000000000,
			"amount": 2000000,
			"account": {"order_id": "e7b8b7a0-0000-0000-0000-000000000001"}
		}
	}`

	var req PaymeRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if req.Method != "CreateTransaction" {
		t.Errorf("method = %q", req.Method)
	}
	if req.Params.Amount != 2000000 {
		t.Errorf("amount = %d, want 2000000", req.Params.Amount)
	}
	if req.Params.Account.OrderID != "e7b8b7a0-0000-0000-0000-000000000001" {
		t.Errorf("order_id = %q", req.Params.Account.OrderID)
	}
}
