package units

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestToRawPriceTruncates(t *testing.T) {
	cases := []struct {
		price    string
		decimals int
		want     uint64
	}{
		{"50000.50", 2, 5000050},
		{"50000.509", 2, 5000050},
		{"0.015", 4, 150},
		{"1", 6, 1000000},
		{"0.0000001", 6, 0},
		{"0", 2, 0},
		{"-5", 2, 0},
	}
	for _, tc := range cases {
		if got := ToRawPrice(dec(tc.price), tc.decimals); got != tc.want {
			t.Fatalf("ToRawPrice(%s, %d) = %d, want %d", tc.price, tc.decimals, got, tc.want)
		}
	}
}

func TestToRawSizeTruncates(t *testing.T) {
	if got := ToRawSize(dec("0.015"), 4); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	if got := ToRawSize(dec("0.01559"), 4); got != 155 {
		t.Fatalf("expected truncation to 155, got %d", got)
	}
}

func TestFromRawRoundTrip(t *testing.T) {
	raw := ToRawPrice(dec("1234.56"), 2)
	back := FromRaw(raw, 2)
	if !back.Equal(dec("1234.56")) {
		t.Fatalf("expected 1234.56, got %s", back)
	}
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price    string
		tick     uint64
		decimals int
		want     string
	}{
		{"50000.37", 50, 2, "50000.50"},
		{"50000.24", 50, 2, "50000.00"},
		{"50000.25", 50, 2, "50000.50"},
		{"50000.00", 50, 2, "50000.00"},
		{"3.14159", 5, 4, "3.1415"},
		{"100", 0, 2, "100"},
	}
	for _, tc := range cases {
		got := RoundToTick(dec(tc.price), tc.tick, tc.decimals)
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("RoundToTick(%s, %d, %d) = %s, want %s", tc.price, tc.tick, tc.decimals, got, tc.want)
		}
	}
}

func TestRoundToTickIsTickMultiple(t *testing.T) {
	price := dec("0.123456")
	rounded := RoundToTick(price, 25, 6)
	raw := ToRawPrice(rounded, 6)
	if raw%25 != 0 {
		t.Fatalf("rounded raw price %d is not a tick multiple", raw)
	}
}
