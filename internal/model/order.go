package model

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Fees applied on top of the product subtotal. BaseFeePercent is rounded up
// to the next minor unit; DeliveryFee is in minor units.
const (
	BaseFeePercent = 3
	DeliveryFee    = 5000
)

var phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Product is the single item the storefront sells.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
}

// Customer holds the buyer's contact details.
type Customer struct {
	Email    string
	FullName string
	Phone    string
}

// Validate checks the customer fields.
func (c Customer) Validate() error {
	if c.Email == "" {
		return invalid("email", "email is required")
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return invalid("email", "invalid email address")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(c.FullName)); n < 3 || n > 100 {
		return invalid("full_name", "full name must be between 3 and 100 characters")
	}
	if len(c.Phone) < 10 {
		return invalid("phone", "phone must be at least 10 digits")
	}
	if !phonePattern.MatchString(c.Phone) {
		return invalid("phone", "invalid phone number format")
	}
	return nil
}

// Delivery is where the order ships to.
type Delivery struct {
	Address string
	City    string
}

// Validate checks the delivery fields.
func (d Delivery) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Address)); n < 10 || n > 200 {
		return invalid("address", "address must be between 10 and 200 characters")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.City)); n < 3 || n > 100 {
		return invalid("city", "city must be between 3 and 100 characters")
	}
	return nil
}

// Order is what the buyer submits in the delivery step.
type Order struct {
	Customer  Customer
	Delivery  Delivery
	ProductID string
	UnitPrice int64
	Quantity  int
}

// Validate checks the whole order.
func (o Order) Validate() error {
	if o.ProductID == "" {
		return invalid("product_id", "product is required")
	}
	if o.Quantity < 1 {
		return invalid("quantity", "quantity must be at least 1")
	}
	if o.UnitPrice <= 0 {
		return invalid("unit_price", "price must be positive")
	}
	if err := o.Customer.Validate(); err != nil {
		return err
	}
	return o.Delivery.Validate()
}

// Quote returns the amounts the buyer will be charged.
func (o Order) Quote() Quote {
	return NewQuote(o.UnitPrice, o.Quantity)
}

// Quote breaks down the charged amount, in minor currency units.
type Quote struct {
	Subtotal    int64
	BaseFee     int64
	DeliveryFee int64
	Total       int64
}

// NewQuote computes subtotal, fees and total for a unit price and quantity.
func NewQuote(unitPrice int64, quantity int) Quote {
	if quantity < 1 {
		quantity = 1
	}
	subtotal := unitPrice * int64(quantity)
	baseFee := (subtotal*BaseFeePercent + 99) / 100
	return Quote{
		Subtotal:    subtotal,
		BaseFee:     baseFee,
		DeliveryFee: DeliveryFee,
		Total:       subtotal + baseFee + DeliveryFee,
	}
}
