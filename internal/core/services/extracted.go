package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// errNotExtracted marks a model answer that reports no value.
var errNotExtracted = errors.New("value not found in document")

// ExtractionFormat describes the answer shape requested for a metadata type.
func ExtractionFormat(t domain.MetadataType) string {
	switch t {
	case domain.MetadataDate:
		return "date in DD/MM/YYYY format"
	case domain.MetadataFloat:
		return "number (no currency symbol)"
	case domain.MetadataInt:
		return "number as an integer"
	case domain.MetadataBoolean:
		return "'true' or 'false'"
	}
	return "value"
}

// ParseExtracted types a model answer. It returns errNotExtracted when the
// model reports no value, and a validation error when the answer cannot be
// read as the requested type.
func ParseExtracted(t domain.MetadataType, raw string) (domain.MetadataValue, error) {
	s := strings.Trim(strings.TrimSpace(raw), "\"'`")
	if strings.EqualFold(s, "not found") || s == "-1" || s == "" {
		return domain.MetadataValue{}, errNotExtracted
	}

	switch t {
	case domain.MetadataFloat:
		f, err := strconv.ParseFloat(keep(s, ".-"), 64)
		if err != nil {
			return domain.MetadataValue{}, fmt.Errorf("%w: %q is not a number", domain.ErrValidation, raw)
		}
		return domain.FloatValue(f), nil
	case domain.MetadataInt:
		i, err := strconv.ParseInt(keep(s, "-"), 10, 64)
		if err != nil {
			return domain.MetadataValue{}, fmt.Errorf("%w: %q is not an integer", domain.ErrValidation, raw)
		}
		return domain.IntValue(i), nil
	case domain.MetadataDate:
		d, err := parseExtractedDate(s)
		if err != nil {
			return domain.MetadataValue{}, fmt.Errorf("%w: %q: %v", domain.ErrValidation, raw, err)
		}
		return domain.DateValue(d), nil
	case domain.MetadataBoolean:
		switch strings.ToLower(s) {
		case "true", "yes", "1":
			return domain.BooleanValue(true), nil
		}
		return domain.BooleanValue(false), nil
	}
	return domain.StringValue(s), nil
}

// keep drops every rune that is neither a digit nor in extra.
func keep(s, extra string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || strings.ContainsRune(extra, r) {
			return r
		}
		return -1
	}, s)
}

func parseExtractedDate(s string) (time.Time, error) {
	var (
		d   time.Time
		err error
	)
	if strings.Contains(s, "/") {
		d, err = time.Parse("2/1/2006", s)
	} else {
		d, err = time.Parse(domain.DateLayout, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("want DD/MM/YYYY")
	}
	if y := d.Year(); y < 1900 || y > 2100 {
		return time.Time{}, fmt.Errorf("year %d out of range", y)
	}
	return d, nil
}
