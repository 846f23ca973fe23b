package chain

import (
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     int64
		wantErr  bool
	}{
		{"1", 6, 1_000_000, false},
		{"0.5", 6, 500_000, false},
		{"25.50", 6, 25_500_000, false},
		{"0.000001", 6, 1, false},
		{"100", 0, 100, false},
		{".5", 6, 500_000, false},
		{"0.0000001", 6, 0, true}, // more precision than the token carries
		{"-1", 6, 0, true},
		{"", 6, 0, true},
		{"abc", 6, 0, true},
		{"1.2.3", 6, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUnits(tc.in, tc.decimals)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseUnits(%q) = %s, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnits(%q): %v", tc.in, err)
			}
			if got.Int64() != tc.want {
				t.Errorf("ParseUnits(%q) = %s, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in       int64
		decimals int
		want     string
	}{
		{1_000_000, 6, "1"},
		{1_500_000, 6, "1.5"},
		{1, 6, "0.000001"},
		{0, 6, "0"},
		{25_500_000, 6, "25.5"},
		{100, 0, "100"},
	}
	for _, tc := range cases {
		if got := FormatUnits(big.NewInt(tc.in), tc.decimals); got != tc.want {
			t.Errorf("FormatUnits(%d, %d) = %q, want %q", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestFormatUnits_RoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.5", "123.456789", "0.000001"} {
		v, err := ParseUnits(s, 6)
		if err != nil {
			t.Fatalf("ParseUnits(%q): %v", s, err)
		}
		if got := FormatUnits(v, 6); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestHashTaskID(t *testing.T) {
	// keccak256("") is a fixed constant; any implementation drift shows here.
	if got := HashTaskID("").Hex(); got != "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470" {
		t.Errorf("HashTaskID(\"\") = %s", got)
	}
	if HashTaskID("t1") == HashTaskID("t2") {
		t.Error("distinct ids collide")
	}
	if HashTaskID("t1") != HashTaskID("t1") {
		t.Error("hash not deterministic")
	}
}
