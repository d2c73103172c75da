package ingestion

import (
	"strconv"
	"strings"
	"time"
)

// ParseAmount parses a monetary value leniently, accepting both decimal-comma
// and decimal-point conventions with optional thousands separators:
// "199,90", "1 234,56", "1,234.56", "1234.56".
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	// Strip currency text and spacing (incl. NBSP and narrow NBSP).
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the rightmost one is the decimal separator.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Comma only: decimal if followed by 1-2 digits, thousands otherwise.
		if len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s[:lastComma], ",", "", -1) + "." + s[lastComma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseQuantity parses an integer count, tolerating decimal notation ("2.0").
func ParseQuantity(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, ok := ParseAmount(s); ok && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"02-01-2006",
	"1/2/2006",
}

// ParseDate tries the common spreadsheet date formats, day-first for the
// slash and dash forms (the convention of the source locale).
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
