package models

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Money
		wantErr bool
	}{
		{"whole", "10", 10_000_000, false},
		{"two decimals", "12.50", 12_500_000, false},
		{"sub cent", "0.0045", 4_500, false},
		{"leading dot", ".5", 500_000, false},
		{"negative", "-3.25", -3_250_000, false},
		{"plus sign", "+1", 1_000_000, false},
		{"six decimals", "0.000001", 1, false},
		{"too precise", "0.0000001", 0, true},
		{"empty", "", 0, true},
		{"letters", "abc", 0, true},
		{"double sign", "--1", 0, true},
		{"lone dot", ".", 0, true},
		{"sign in fraction", "1.+5", 0, true},
		{"sign in whole", "1+2", 0, true},
		{"largest", "9223372036853.999999", 9_223_372_036_853_999_999, false},
		{"wraps int64", "18446744073709.551617", 0, true},
		{"past range", "9300000000000", 0, true},
		{"negative past range", "-9300000000000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMoney(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseMoney(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		in   Money
		want string
	}{
		{0, "0.00"},
		{12_500_000, "12.50"},
		{4_500, "0.0045"},
		{-3_250_000, "-3.25"},
		{1, "0.000001"},
		{100_000_000, "100.00"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Money(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1.25","b":0.5,"c":null}`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v.A != 1_250_000 || v.B != 500_000 || v.C != 0 {
		t.Errorf("unexpected values: %+v", v)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"a":"1.25","b":"0.50","c":"0.00"}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestMoneyPerSecond(t *testing.T) {
	rate := Money(12_000) // 0.012 per minute

	if got := rate.PerSecond(60); got != 12_000 {
		t.Errorf("60s = %d, want 12000", got)
	}
	if got := rate.PerSecond(1); got != 200 {
		t.Errorf("1s = %d, want 200", got)
	}
	// 7 * 12000 / 60 = 1400 exactly, 7 * 10001 / 60 rounds up
	if got := Money(10_001).PerSecond(7); got != 1_167 {
		t.Errorf("rounded = %d, want 1167", got)
	}
	if got := rate.PerSecond(0); got != 0 {
		t.Errorf("0s = %d, want 0", got)
	}
}
