package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// dateLayouts lists the layouts ledger exports use, day-first layouts ahead of
// ISO ones because both ledgers come from Spanish-locale systems.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	"02.01.2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// ParseDate parses a ledger date cell. Leading quote marks left by
// spreadsheet exports are ignored. An empty cell yields the null date and no
// error; an unrecognized value yields the null date and an error.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "'´`"))
	if s == "" || isNullToken(s) {
		return NullDate(), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}

	return NullDate(), fmt.Errorf("unable to parse date '%s'", s)
}

// ParseAmount parses an amount cell, removing currency symbols, thousand
// separators and spaces. Empty cells are zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || isNullToken(s) {
		return decimal.Zero, nil
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// NormalizeReference cleans a document or reference cell. Spreadsheet
// artifacts such as "nan" or a trailing ".0" on numeric references are
// removed; an empty result means the reference is absent.
func NormalizeReference(s string) string {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return ""
	}
	if strings.HasSuffix(s, ".0") && isDigits(s[:len(s)-2]) {
		s = s[:len(s)-2]
	}
	return s
}

// TruncateAmount drops the fractional part of an amount, rounding toward
// zero. Both workflows compare amounts at this precision.
func TruncateAmount(d decimal.Decimal) int64 {
	return d.Truncate(0).IntPart()
}

func isNullToken(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "nat", "none", "null":
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
