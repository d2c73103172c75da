package fetcher

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"orderdesk_backend/platform/apperr"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
)

// ParseUpload dispatches an uploaded file to the CSV or spreadsheet-binary
// parser by extension and content type, defaulting to CSV when ambiguous.
func ParseUpload(filename, contentType string, r io.Reader) (Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ct := strings.ToLower(contentType)

	isXLSX := ext == ".xlsx" || ext == ".xlsm" ||
		strings.Contains(ct, "spreadsheetml") ||
		strings.Contains(ct, "vnd.ms-excel")

	if isXLSX {
		return parseXLSX(r)
	}
	return ParseCSV(r)
}

func parseXLSX(r io.Reader) (Table, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, apperr.Wrap(apperr.KindValidation, "open spreadsheet", err)
	}
	defer func() {
		_ = book.Close()
	}()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, apperr.Validation("spreadsheet has no sheets")
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return Table{}, apperr.Wrap(apperr.KindValidation, "read spreadsheet rows", err)
	}

	return buildTable(rows)
}

// ParseCSV parses delimiter-autodetected CSV: BOM stripped, empty and
// duplicate header columns dropped (first occurrence kept), blank rows skipped.
func ParseCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, err
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, apperr.Validation("source is empty")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = DetectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}

	return buildTable(records)
}

// DetectDelimiter picks comma, semicolon or tab by splitting the first line
// and preferring the delimiter that yields more than one column.
func DetectDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}

	best := ','
	bestCount := 1
	for _, delim := range []rune{',', ';', '\t'} {
		count := len(splitOutsideQuotes(string(line), delim))
		if count > bestCount {
			best = delim
			bestCount = count
		}
	}
	return best
}

// splitOutsideQuotes splits on delim, ignoring delimiters inside double quotes.
func splitOutsideQuotes(s string, delim rune) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == delim && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, current.String())
	return parts
}

func buildTable(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, apperr.Validation("source has no rows")
	}

	rawHeaders := records[0]
	keep := make([]int, 0, len(rawHeaders))
	headers := make([]string, 0, len(rawHeaders))
	seen := make(map[string]bool, len(rawHeaders))

	for i, h := range rawHeaders {
		name := strings.TrimSpace(h)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		keep = append(keep, i)
		headers = append(headers, name)
	}

	if len(headers) == 0 {
		return Table{}, apperr.Validation("source has no usable header columns")
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlankRow(record) {
			continue
		}
		row := make([]string, len(keep))
		for j, idx := range keep {
			if idx < len(record) {
				row[j] = strings.TrimSpace(record[idx])
			}
		}
		rows = append(rows, row)
	}

	return Table{Headers: headers, Rows: rows}, nil
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// LooksLikeHTML reports whether the body is an HTML document rather than
// tabular data, e.g. a Google interstitial or permission page.
func LooksLikeHTML(data []byte) bool {
	sample := data
	if len(sample) > 2048 {
		sample = sample[:2048]
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(sample))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.TextToken:
			if len(bytes.TrimSpace(tokenizer.Text())) > 0 {
				return false
			}
		case html.DoctypeToken:
			return true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "html", "head", "body", "meta", "title", "script", "style", "div":
				return true
			default:
				return false
			}
		}
	}
}
