package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentTransitions(t *testing.T) {
	t.Run("processing only from pending", func(t *testing.T) {
		if !CanMarkProcessing(PaymentStatusPending) {
			t.Error("pending -> processing should be allowed")
		}
		for _, s := range []PaymentStatus{PaymentStatusProcessing, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded} {
			if CanMarkProcessing(s) {
				t.Errorf("%s -> processing should be denied", s)
			}
		}
	})

	t.Run("success from pending or processing", func(t *testing.T) {
		if !CanMarkSuccess(PaymentStatusPending) || !CanMarkSuccess(PaymentStatusProcessing) {
			t.Error("pending/processing -> success should be allowed")
		}
		for _, s := range []PaymentStatus{PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded} {
			if CanMarkSuccess(s) {
				t.Errorf("%s -> success should be denied", s)
			}
		}
	})

	t.Run("settled payments cannot be cancelled", func(t *testing.T) {
		if CanMarkCancelled(PaymentStatusSuccess) || CanMarkCancelled(PaymentStatusRefunded) {
			t.Error("success/refunded -> cancelled should be denied")
		}
		for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing, PaymentStatusFailed} {
			if !CanMarkCancelled(s) {
				t.Errorf("%s -> cancelled should be allowed", s)
			}
		}
	})
}

func TestTiyinConversion(t *testing.T) {
	t.Run("exact sums", func(t *testing.T) {
		cases := []struct {
			amount string
			tiyin  int64
		}{
			{"20000", 2000000},
			{"20000.00", 2000000},
			{"0.01", 1},
			{"123456.78", 12345678},
		}
		for _, tc := range cases {
			got, ok := ToTiyin(decimal.RequireFromString(tc.amount))
			if !ok {
				t.Errorf("ToTiyin(%s) unexpectedly inexact", tc.amount)
				continue
			}
			if got != tc.tiyin {
				t.Errorf("ToTiyin(%s) = %d, want %d", tc.amount, got, tc.tiyin)
			}
		}
	})

	t.Run("sub-tiyin precision is rejected", func(t *testing.T) {
		if _, ok := ToTiyin(decimal.RequireFromString("100.005")); ok {
			t.Error("expected sub-tiyin amount to be rejected")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		amount := decimal.RequireFromString("9999.99")
		tiyin, ok := ToTiyin(amount)
		if !ok {
			t.Fatal("unexpected inexact conversion")
		}
		if back := FromTiyin(tiyin); !back.Equal(amount) {
			t.Errorf("round trip mismatch: %s != %s", back, amount)
		}
	})
}

func TestValidProvider(t *testing.T) {
	for _, p := range []PaymentProvider{ProviderClick, ProviderPayme, ProviderCash} {
		if !ValidProvider(p) {
			t.Errorf("expected %s to be valid", p)
		}
	}
	if ValidProvider("paypal") {
		t.Error("unknown provider should be invalid")
	}
}
