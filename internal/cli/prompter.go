package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/checkout"
	"github.com/Veraticus/storefront-checkout/internal/model"
)

// ErrInvalidExpiry is returned for expiry dates not written as MM/YY.
var ErrInvalidExpiry = errors.New("expiry must be MM/YY")

// Prompter asks the buyer for whatever the command line did not provide.
type Prompter struct {
	reader *NonBlockingReader
	writer io.Writer
	now    func() time.Time
}

// NewPrompter creates a prompter reading answers from reader.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
		now:    time.Now,
	}
}

// CompleteOrder prompts for every empty customer and delivery field, in the
// order they are validated, until each one passes.
func (p *Prompter) CompleteOrder(ctx context.Context, order *model.Order) error {
	validateCustomer := func() error { return order.Customer.Validate() }
	validateDelivery := func() error { return order.Delivery.Validate() }

	fields := []struct {
		value *string
		check func() error
		label string
		field string
	}{
		{&order.Customer.Email, validateCustomer, "Email", "email"},
		{&order.Customer.FullName, validateCustomer, "Full name", "full_name"},
		{&order.Customer.Phone, validateCustomer, "Phone", "phone"},
		{&order.Delivery.Address, validateDelivery, "Delivery address", "address"},
		{&order.Delivery.City, validateDelivery, "City", "city"},
	}

	for _, f := range fields {
		if err := p.askField(ctx, f.label, f.field, f.value, f.check); err != nil {
			return err
		}
	}
	return nil
}

// CompleteCard prompts for every missing card field.
func (p *Prompter) CompleteCard(ctx context.Context, card *model.Card) error {
	check := func() error { return card.Validate(p.now()) }

	if err := p.askField(ctx, "Card number", "number", &card.Number, check); err != nil {
		return err
	}
	if card.ExpMonth == 0 {
		for {
			raw, err := p.ask(ctx, "Expiry (MM/YY)")
			if err != nil {
				return err
			}
			month, year, err := ParseExpiry(raw)
			if err != nil {
				p.complain(err.Error())
				continue
			}
			card.ExpMonth, card.ExpYear = month, year
			if fieldErr := fieldError(check(), "exp_month", "exp_year"); fieldErr != nil {
				p.complain(fieldErr.Error())
				card.ExpMonth, card.ExpYear = 0, 0
				continue
			}
			break
		}
	}
	if err := p.askField(ctx, "CVC", "cvc", &card.CVC, check); err != nil {
		return err
	}
	return p.askField(ctx, "Card holder", "holder", &card.Holder, check)
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.ask(ctx, question+" [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ShowProducts prints the catalog.
func (p *Prompter) ShowProducts(products []model.Product) error {
	if len(products) == 0 {
		return p.println(FormatInfo("No products available"))
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-12s %-28s %14s %6s", "ID", "NAME", "PRICE", "STOCK")))
	b.WriteString("\n")
	for _, prod := range products {
		fmt.Fprintf(&b, "%-12s %-28s %14s %6d\n", prod.ID, truncate(prod.Name, 28), FormatAmount(prod.Price), prod.Stock)
	}
	return p.println(b.String())
}

// ShowSummary prints what the buyer is about to pay.
func (p *Prompter) ShowSummary(s checkout.Summary) error {
	content := strings.Join([]string{
		fmt.Sprintf("Transaction:  %s", s.TransactionID),
		fmt.Sprintf("Product:      %s x%d", s.Order.ProductID, s.Order.Quantity),
		fmt.Sprintf("Ship to:      %s, %s", s.Order.Delivery.Address, s.Order.Delivery.City),
		fmt.Sprintf("Card:         %s %s (%s)", CardIcon, s.Card, s.Brand),
		"",
		fmt.Sprintf("Subtotal:     %s", FormatAmount(s.Quote.Subtotal)),
		fmt.Sprintf("Base fee:     %s", FormatAmount(s.Quote.BaseFee)),
		fmt.Sprintf("Delivery fee: %s", FormatAmount(s.Quote.DeliveryFee)),
		fmt.Sprintf("Total:        %s", FormatAmount(s.Quote.Total)),
	}, "\n")
	return p.println(RenderBox("Order summary", content))
}

// ShowResult prints the outcome of a resolved payment.
func (p *Prompter) ShowResult(transactionID string, status model.Status) error {
	switch status {
	case model.StatusApproved:
		return p.println(FormatSuccess(fmt.Sprintf("Payment %s approved", transactionID)))
	case model.StatusDeclined:
		return p.println(FormatError(fmt.Sprintf("Payment %s declined", transactionID)))
	case model.StatusVoided:
		return p.println(FormatWarning(fmt.Sprintf("Payment %s voided", transactionID)))
	case model.StatusError:
		return p.println(FormatError(fmt.Sprintf("Payment %s failed", transactionID)))
	default:
		return p.println(FormatInfo(fmt.Sprintf("Payment %s is still %s. Check on it with: checkout resume", transactionID, status)))
	}
}

// ShowTransaction prints the backend's record of a transaction. Fields the
// backend left out are skipped.
func (p *Prompter) ShowTransaction(tx *model.Transaction) error {
	lines := []string{
		fmt.Sprintf("Transaction:  %s", tx.ID),
		fmt.Sprintf("Status:       %s", tx.Status),
	}
	if tx.Reference != "" {
		lines = append(lines, fmt.Sprintf("Reference:    %s", tx.Reference))
	}
	product := tx.ProductID
	if tx.Product != nil && tx.Product.Name != "" {
		product = tx.Product.Name
	}
	if product != "" {
		lines = append(lines, fmt.Sprintf("Product:      %s x%d", product, tx.Quantity))
	}
	if tx.Amount > 0 {
		lines = append(lines, fmt.Sprintf("Amount:       %s", FormatAmount(tx.Amount)))
	}
	if tx.Customer.FullName != "" || tx.Customer.Email != "" {
		lines = append(lines, fmt.Sprintf("Customer:     %s <%s>", tx.Customer.FullName, tx.Customer.Email))
	}
	if tx.Delivery != nil {
		lines = append(lines, fmt.Sprintf("Ship to:      %s, %s", tx.Delivery.Address, tx.Delivery.City))
	}
	if !tx.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Created:      %s", tx.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if err := p.println(RenderBox("Transaction", strings.Join(lines, "\n"))); err != nil {
		return err
	}
	return p.ShowResult(tx.ID, tx.Status)
}

// ShowHistory prints resolved payments, newest first.
func (p *Prompter) ShowHistory(records []model.PaymentRecord) error {
	if len(records) == 0 {
		return p.println(FormatInfo("No payments yet"))
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-24s %-10s %-20s %8s", "TRANSACTION", "STATUS", "RESOLVED", "TOOK")))
	b.WriteString("\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-24s %-10s %-20s %8s\n",
			truncate(r.TransactionID, 24), r.Status,
			r.ResolvedAt.Local().Format("2006-01-02 15:04"),
			r.Duration().Round(time.Second))
	}
	return p.println(b.String())
}

// ParseExpiry reads MM/YY or MM/YYYY into a month and a four-digit year.
func ParseExpiry(raw string) (int, int, error) {
	monthPart, yearPart, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return 0, 0, ErrInvalidExpiry
	}
	month, err := strconv.Atoi(strings.TrimSpace(monthPart))
	if err != nil {
		return 0, 0, ErrInvalidExpiry
	}
	yearPart = strings.TrimSpace(yearPart)
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, ErrInvalidExpiry
	}
	switch len(yearPart) {
	case 2:
		year += 2000
	case 4:
	default:
		return 0, 0, ErrInvalidExpiry
	}
	return month, year, nil
}

// FormatAmount renders minor units as a peso amount with thousands separators.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + "$" + b.String()
}

func (p *Prompter) askField(ctx context.Context, label, field string, value *string, check func() error) error {
	if *value != "" {
		return nil
	}
	for {
		answer, err := p.ask(ctx, label)
		if err != nil {
			return err
		}
		*value = answer
		if fieldErr := fieldError(check(), field); fieldErr != nil {
			p.complain(fieldErr.Error())
			*value = ""
			continue
		}
		return nil
	}
}

func (p *Prompter) ask(ctx context.Context, label string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(label)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := p.reader.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("input terminated")
	}
	return answer, err
}

func (p *Prompter) complain(message string) {
	_ = p.println(FormatError(message))
}

func (p *Prompter) println(s string) error {
	if _, err := fmt.Fprintln(p.writer, s); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// fieldError returns err only when it is about one of fields.
func fieldError(err error, fields ...string) error {
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	for _, f := range fields {
		if ve.Field == f {
			return ve
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
