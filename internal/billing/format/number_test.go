package format

import (
	"testing"
	"time"
)

func TestFormatBillNumber(t *testing.T) {
	issued := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		template string
		seq      int64
		want     string
		wantErr  bool
	}{
		{DefaultBillNumberTemplate, 7, "B-20260307-0007", false},
		{"B-{YY}{MM}-{SEQ}", 12345, "B-2603-12345", false},
		{DefaultBillNumberTemplate, 0, "", true},
		{"", 1, "", true},
		{"B-{YYYY}-{NOPE}", 1, "", true},
	}

	for _, tc := range cases {
		got, err := FormatBillNumber(tc.template, issued, tc.seq)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q seq=%d: expected error, got %q", tc.template, tc.seq, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q seq=%d: unexpected error %v", tc.template, tc.seq, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q seq=%d: got %q want %q", tc.template, tc.seq, got, tc.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		exponent int
		want     string
	}{
		{12345, "USD", 2, "USD 123.45"},
		{5, "USD", 2, "USD 0.05"},
		{-250, "EUR", 2, "EUR -2.50"},
		{15000, "IDR", 0, "IDR 15000"},
		{1, "", 3, "0.001"},
	}
	for _, tc := range cases {
		if got := FormatMoney(tc.amount, tc.currency, tc.exponent); got != tc.want {
			t.Errorf("FormatMoney(%d, %q, %d) = %q, want %q", tc.amount, tc.currency, tc.exponent, got, tc.want)
		}
	}
}
