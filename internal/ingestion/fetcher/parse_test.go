package fetcher

import (
	"strings"
	"testing"
)

func TestParseCSV_CommaDelimited(t *testing.T) {
	input := "Order ID,Statut,Montant\nCMD-1,confirmé,\"199,90\"\nCMD-2,annulé,50\n"

	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(table.Headers) != 3 || table.Headers[1] != "Statut" {
		t.Fatalf("headers = %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[0][2] != "199,90" {
		t.Fatalf("quoted cell = %q", table.Rows[0][2])
	}
}

func TestParseCSV_SemicolonDelimited(t *testing.T) {
	input := "Commande;Etat;Montant\nCMD-1;livré;120\n"

	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(table.Headers) != 3 {
		t.Fatalf("headers = %v", table.Headers)
	}
	if table.Rows[0][1] != "livré" {
		t.Fatalf("cell = %q", table.Rows[0][1])
	}
}

func TestParseCSV_BOMAndBlankRows(t *testing.T) {
	input := "\xEF\xBB\xBFid,statut\nCMD-1,ok\n,,\n\nCMD-2,non\n"

	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if table.Headers[0] != "id" {
		t.Fatalf("BOM not stripped: %q", table.Headers[0])
	}
	if len(table.Rows) != 2 {
		t.Fatalf("blank rows kept: %d rows", len(table.Rows))
	}
}

func TestParseCSV_DuplicateAndEmptyHeaders(t *testing.T) {
	input := "id,,Statut,statut\nCMD-1,x,confirmé,doublon\n"

	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(table.Headers) != 2 {
		t.Fatalf("headers = %v", table.Headers)
	}
	// First occurrence of a duplicate header wins, with its column.
	if table.Rows[0][1] != "confirmé" {
		t.Fatalf("kept column = %q", table.Rows[0][1])
	}
}

func TestParseCSV_Empty(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("   \n  ")); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestDetectDelimiter(t *testing.T) {
	cases := []struct {
		line string
		want rune
	}{
		{"a,b,c\n1,2,3", ','},
		{"a;b;c\n1;2;3", ';'},
		{"a\tb\tc\n1\t2\t3", '\t'},
		{"\"x;y\",b\n1,2", ','}, // semicolon inside quotes does not count
		{"single-column", ','},
	}

	for _, tc := range cases {
		if got := DetectDelimiter([]byte(tc.line)); got != tc.want {
			t.Fatalf("DetectDelimiter(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestLooksLikeHTML(t *testing.T) {
	htmlDocs := []string{
		"<!DOCTYPE html><html><body>Sign in</body></html>",
		"<html><head><title>Google Sheets</title></head></html>",
		"  <meta charset=\"utf-8\">",
	}
	for _, doc := range htmlDocs {
		if !LooksLikeHTML([]byte(doc)) {
			t.Fatalf("LooksLikeHTML(%q) = false", doc)
		}
	}

	csvDocs := []string{
		"id,statut\nCMD-1,ok\n",
		"a;b;c",
		"Produit <promo>,prix\n", // stray angle brackets in data
	}
	for _, doc := range csvDocs {
		if LooksLikeHTML([]byte(doc)) {
			t.Fatalf("LooksLikeHTML(%q) = true", doc)
		}
	}
}

func TestParseUpload_DefaultsToCSV(t *testing.T) {
	table, err := ParseUpload("export.txt", "text/plain", strings.NewReader("id,statut\nCMD-1,ok\n"))
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
}
