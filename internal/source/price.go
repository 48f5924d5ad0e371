package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonPriceChars = regexp.MustCompile(`[^\d.,]`)
	priceToken    = regexp.MustCompile(`\$?\s*[\d][\d,.]*`)
)

// ParsePrice converts displayed price text to a number. It accepts currency
// symbols, spaces and both separator conventions:
//
//	"$1.234.567"    -> 1234567
//	"1,234,567.89"  -> 1234567.89
//	"1.234,56"      -> 1234.56
//	"1234,5"        -> 1234.5
//
// A single separator followed by one or two digits is decimal; otherwise it
// groups thousands.
func ParsePrice(text string) (float64, error) {
	cleaned := nonPriceChars.ReplaceAllString(strings.TrimSpace(text), "")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", text)
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasDot:
		cleaned = normalizeSeparator(cleaned, ".")
	case hasComma:
		cleaned = normalizeSeparator(cleaned, ",")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	return v, nil
}

func normalizeSeparator(s, sep string) string {
	parts := strings.Split(s, sep)
	if len(parts) == 2 && len(parts[1]) <= 2 {
		return parts[0] + "." + parts[1]
	}
	return strings.ReplaceAll(s, sep, "")
}

// firstPrice returns the first positive price found in text.
func firstPrice(text string) (float64, bool) {
	for _, tok := range priceToken.FindAllString(text, -1) {
		if v, err := ParsePrice(tok); err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}
