package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CardBrand is the card network inferred from the card number.
type CardBrand string

// Supported card brands.
const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandUnknown    CardBrand = "unknown"
)

var (
	visaPattern       = regexp.MustCompile(`^4[0-9]{12}(?:[0-9]{3})?$`)
	mastercardPattern = regexp.MustCompile(`^5[1-5][0-9]{14}$`)
	digitsPattern     = regexp.MustCompile(`^\d+$`)
)

const (
	cardNumberLength = 16
	cvcLength        = 3
	maxYearsAhead    = 20
)

// Card is raw card data. It is only ever sent to the tokenization service.
type Card struct {
	Number   string
	CVC      string
	Holder   string
	ExpMonth int
	ExpYear  int
}

// CleanNumber returns the card number without whitespace.
func (c Card) CleanNumber() string {
	return strings.Join(strings.Fields(c.Number), "")
}

// Brand detects the card network.
func (c Card) Brand() CardBrand {
	n := c.CleanNumber()
	switch {
	case visaPattern.MatchString(n):
		return BrandVisa
	case mastercardPattern.MatchString(n):
		return BrandMastercard
	default:
		return BrandUnknown
	}
}

// Masked shows only the last four digits.
func (c Card) Masked() string {
	n := c.CleanNumber()
	if len(n) > 4 {
		n = n[len(n)-4:]
	}
	return "**** **** **** " + n
}

// IsExpired reports whether the card expiry month is before now.
func (c Card) IsExpired(now time.Time) bool {
	year, month := now.Year(), int(now.Month())
	if c.ExpYear < year {
		return true
	}
	return c.ExpYear == year && c.ExpMonth < month
}

// Validate checks the card against what the processor accepts.
func (c Card) Validate(now time.Time) error {
	n := c.CleanNumber()
	if n == "" {
		return invalid("number", "card number is required")
	}
	if !digitsPattern.MatchString(n) {
		return invalid("number", "card number must contain only numbers")
	}
	if len(n) != cardNumberLength {
		return invalid("number", "card number must be %d digits", cardNumberLength)
	}
	if c.Brand() == BrandUnknown {
		return invalid("number", "only Visa and Mastercard are accepted")
	}
	if c.ExpMonth < 1 || c.ExpMonth > 12 {
		return invalid("exp_month", "month must be between 1 and 12")
	}
	if c.ExpYear > now.Year()+maxYearsAhead {
		return invalid("exp_year", "invalid expiration year")
	}
	if c.IsExpired(now) {
		return invalid("exp_year", "card has expired")
	}
	if len(c.CVC) != cvcLength || !digitsPattern.MatchString(c.CVC) {
		return invalid("cvc", "CVC must be %d digits", cvcLength)
	}
	if strings.TrimSpace(c.Holder) == "" {
		return invalid("holder", "card holder is required")
	}
	return nil
}

// ExpMonthString is the two-digit zero-padded expiry month.
func (c Card) ExpMonthString() string {
	return fmt.Sprintf("%02d", c.ExpMonth)
}

// ExpYearString is the two-digit expiry year.
func (c Card) ExpYearString() string {
	return fmt.Sprintf("%02d", c.ExpYear%100)
}
