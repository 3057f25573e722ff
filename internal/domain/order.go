package domain

import "time"

// OrderLine — неизменяемый снимок позиции корзины на момент оформления.
type OrderLine struct {
	ID             string
	SKUID          string
	SKUCode        string
	SKUName        string
	Quantity       int
	UnitPriceMinor int64
	Selection      map[string]string
	VariationKey   string
}

// Order — заказ на покупку запчастей. После создания меняется только статус оплаты.
type Order struct {
	ID               string
	CustomerID       string
	Lines            []OrderLine
	TotalAmountMinor int64
	PaymentReview
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, Invalidf("customer id is required"))
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	if !o.Status.Valid() {
		errs = append(errs, Invalidf("unknown order status %q", o.Status))
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, Invalidf("line %s quantity must be positive", line.ID))
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, Invalidf("line %s price must be non-negative", line.ID))
		}
		calc += int64(line.Quantity) * line.UnitPriceMinor
	}
	if calc != o.TotalAmountMinor {
		errs = append(errs, Invalidf("order total %d does not match lines sum %d", o.TotalAmountMinor, calc))
	}

	return errs
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	out := o
	out.PaymentReview = o.PaymentReview.clone()
	if o.Lines != nil {
		out.Lines = make([]OrderLine, len(o.Lines))
		for i, line := range o.Lines {
			line.Selection = cloneSelection(line.Selection)
			out.Lines[i] = line
		}
	}
	return out
}
