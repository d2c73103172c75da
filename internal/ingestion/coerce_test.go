package ingestion

import (
	"testing"
	"time"
)

func TestParseAmount_DecimalComma(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"199,90", 199.90},
		{"1 234,56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"1234.56", 1234.56},
		{"1,234,567", 1234567},
		{"250 MAD", 250},
		{"  99 ", 99},
	}

	for _, tc := range cases {
		got, ok := ParseAmount(tc.raw)
		if !ok {
			t.Fatalf("ParseAmount(%q) not ok", tc.raw)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "gratuit", "n/a"} {
		if _, ok := ParseAmount(raw); ok {
			t.Fatalf("ParseAmount(%q) unexpectedly ok", raw)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	if n, ok := ParseQuantity("3"); !ok || n != 3 {
		t.Fatalf("ParseQuantity(3) = %d, %v", n, ok)
	}
	if n, ok := ParseQuantity("2.0"); !ok || n != 2 {
		t.Fatalf("ParseQuantity(2.0) = %d, %v", n, ok)
	}
	if _, ok := ParseQuantity("2.5"); ok {
		t.Fatal("ParseQuantity(2.5) unexpectedly ok")
	}
	if _, ok := ParseQuantity(""); ok {
		t.Fatal("ParseQuantity empty unexpectedly ok")
	}
}

func TestParseDate_DayFirst(t *testing.T) {
	got, ok := ParseDate("25/12/2024")
	if !ok {
		t.Fatal("ParseDate(25/12/2024) not ok")
	}
	want := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseDate(25/12/2024) = %v, want %v", got, want)
	}
}

func TestParseDate_ISO(t *testing.T) {
	got, ok := ParseDate("2024-12-25 14:30:00")
	if !ok {
		t.Fatal("ParseDate ISO not ok")
	}
	if got.Year() != 2024 || got.Month() != 12 || got.Day() != 25 || got.Hour() != 14 {
		t.Fatalf("ParseDate ISO = %v", got)
	}
}

func TestParseDate_Rejects(t *testing.T) {
	if _, ok := ParseDate("demain"); ok {
		t.Fatal("ParseDate(demain) unexpectedly ok")
	}
}
