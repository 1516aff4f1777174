package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromCurrencyAmount(t *testing.T) {
	cases := []struct {
		rate   float64
		amount string
		out    int64
	}{
		{1.005, "1", 101}, // tie rounds away from zero
		{1.005, "100", 10050},
		{120, "200", 2400000},
		{120, "20", 240000},
		{117.1697, "100", 1171697},
		{117.1697, "10", 117170},
		{0.004, "1", 0},
		{0.005, "1", 1},
		{1.005, "-1", -101},
		{120, "0", 0},
	}
	for _, tc := range cases {
		got := FromCurrencyAmount(tc.rate, decimal.RequireFromString(tc.amount))
		if got.Cents != tc.out {
			t.Fatalf("FromCurrencyAmount(%v, %s) expected %d, got %d", tc.rate, tc.amount, tc.out, got.Cents)
		}
	}
}

func TestMoneyScale(t *testing.T) {
	cases := []struct {
		in     int64
		factor float64
		out    int64
	}{
		{2400000, 0.15, 360000},
		{1171697, 0.15, 175755}, // 175754.55
		{10, 0.15, 2},           // 1.5
		{-10, 0.15, -2},
		{0, 0.15, 0},
	}
	for _, tc := range cases {
		got := Money{Cents: tc.in}.Scale(tc.factor)
		if got.Cents != tc.out {
			t.Fatalf("Scale(%v, %d) expected %d, got %d", tc.factor, tc.in, tc.out, got.Cents)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 360000}
	b := Money{Cents: 240000}
	if got := a.Sub(b); got.Cents != 120000 {
		t.Fatalf("Sub expected 120000, got %d", got.Cents)
	}
	if got := a.Add(b); got.Cents != 600000 {
		t.Fatalf("Add expected 600000, got %d", got.Cents)
	}
	if a.Cmp(b) != 1 || b.Cmp(a) != -1 || a.Cmp(a) != 0 {
		t.Fatalf("unexpected Cmp results")
	}
	if !b.Less(a) || a.Less(b) {
		t.Fatalf("unexpected Less results")
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		1234:    "12.34",
		1:       "0.01",
		-1234:   "-12.34",
		-1:      "-0.01",
		0:       "0.00",
		100:     "1.00",
		1171697: "11716.97",
		58585:   "585.85",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("String(%d) expected %q, got %q", cents, want, got)
		}
	}
}
