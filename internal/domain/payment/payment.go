// Package payment implements the checkout payment state machine.
//
// An attempt moves Processing -> Succeeded or Processing -> Failed. Retrying
// a failed payment creates a new attempt against the same cart, up to a
// bounded count, after which the cart is flagged checkout-blocked. At most
// one attempt per cart may be Processing at a time.
package payment

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/terangacraft/marketplace/internal/domain/order"
)

// Sentinel errors for the payment flow.
var (
	// ErrPaymentInProgress is returned when a submission races an attempt
	// that is still Processing. The duplicate is rejected, never queued.
	ErrPaymentInProgress = errors.New("payment already in progress")
	// ErrStaleCart is returned when the declared amount no longer matches
	// the recomputed totals, or a reservation expired before submission.
	ErrStaleCart = errors.New("stale cart")
	// ErrCheckoutBlocked is returned once the retry budget is exhausted;
	// the cart is terminal and the buyer needs a fresh one.
	ErrCheckoutBlocked = errors.New("checkout blocked")
	// ErrSettlementRejected is returned when the settlement collaborator
	// declines the authorization.
	ErrSettlementRejected = errors.New("settlement rejected")
	// ErrSettlementTimeout is returned when the settlement collaborator does
	// not resolve within the configured deadline.
	ErrSettlementTimeout = errors.New("settlement timed out")
	// ErrEmptyCart is returned when submitting payment for a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when a payment attempt does not exist.
	ErrNotFound = errors.New("payment attempt not found")
)

// Method is the closed set of supported payment methods.
type Method string

const (
	MethodMobileMoney Method = "mobile_money"
	MethodOrangeMoney Method = "orange_money"
	MethodCard        Method = "card"
)

// State enumerates the attempt lifecycle.
type State string

const (
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Attempt is one payment try against a cart. Immutable once Succeeded, and
// once Failed only the Detached flag may change.
type Attempt struct {
	ID        string
	CartID    string
	Method    Method
	State     State
	Amount    decimal.Decimal
	Detached  bool
	CreatedAt time.Time
	SettledAt *time.Time
}

// InvalidInstrumentError reports which field of a payment instrument failed
// structural validation.
type InvalidInstrumentError struct {
	Field  string
	Reason string
}

func (e *InvalidInstrumentError) Error() string {
	return "invalid payment details: " + e.Field + " " + e.Reason
}

// MobileMoneyDetails carries the fields the mobile-money variants collect.
type MobileMoneyDetails struct {
	Phone            string
	ConfirmationCode string
}

// CardDetails carries the fields the card variant collects.
type CardDetails struct {
	Number string
	Expiry string // MM/YY
	CVV    string
	Holder string
}

// Instrument is the tagged variant of method-specific payment details.
// Exactly one of the detail pointers matching the method must be set.
type Instrument struct {
	Method      Method
	MobileMoney *MobileMoneyDetails
	Card        *CardDetails
}

// Validate performs structural validation only; authorization is the
// settlement collaborator's job. now anchors card expiry checks.
func (in Instrument) Validate(now time.Time) error {
	switch in.Method {
	case MethodMobileMoney, MethodOrangeMoney:
		return in.validateMobileMoney()
	case MethodCard:
		return in.validateCard(now)
	default:
		return &InvalidInstrumentError{Field: "method", Reason: "is not supported"}
	}
}

func (in Instrument) validateMobileMoney() error {
	d := in.MobileMoney
	if d == nil {
		return &InvalidInstrumentError{Field: "mobile_money", Reason: "details are required"}
	}
	phone := strings.TrimPrefix(strings.TrimSpace(d.Phone), "+")
	if n := len(phone); n < 7 || n > 15 || !allDigits(phone) {
		return &InvalidInstrumentError{Field: "phone", Reason: "must be 7 to 15 digits"}
	}
	code := strings.TrimSpace(d.ConfirmationCode)
	if n := len(code); n < 4 || n > 8 || !allDigits(code) {
		return &InvalidInstrumentError{Field: "confirmation_code", Reason: "must be 4 to 8 digits"}
	}
	return nil
}

func (in Instrument) validateCard(now time.Time) error {
	d := in.Card
	if d == nil {
		return &InvalidInstrumentError{Field: "card", Reason: "details are required"}
	}
	number := strings.ReplaceAll(strings.TrimSpace(d.Number), " ", "")
	if n := len(number); n < 12 || n > 19 || !allDigits(number) {
		return &InvalidInstrumentError{Field: "number", Reason: "must be 12 to 19 digits"}
	}
	if !luhnValid(number) {
		return &InvalidInstrumentError{Field: "number", Reason: "failed checksum"}
	}
	if err := validateExpiry(d.Expiry, now); err != nil {
		return err
	}
	if n := len(d.CVV); n < 3 || n > 4 || !allDigits(d.CVV) {
		return &InvalidInstrumentError{Field: "cvv", Reason: "must be 3 or 4 digits"}
	}
	if strings.TrimSpace(d.Holder) == "" {
		return &InvalidInstrumentError{Field: "holder", Reason: "is required"}
	}
	return nil
}

// validateExpiry parses MM/YY and rejects past months.
func validateExpiry(expiry string, now time.Time) error {
	t, err := time.Parse("01/06", strings.TrimSpace(expiry))
	if err != nil {
		return &InvalidInstrumentError{Field: "expiry", Reason: "must be MM/YY"}
	}
	// The card is valid through the end of its expiry month.
	endOfMonth := t.AddDate(0, 1, 0)
	if !now.Before(endOfMonth) {
		return &InvalidInstrumentError{Field: "expiry", Reason: "is in the past"}
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// AuthorizeRequest is what the settlement collaborator needs to decide.
type AuthorizeRequest struct {
	AttemptID  string
	Method     Method
	Amount     decimal.Decimal
	Instrument Instrument
}

// Result is the settlement collaborator's typed answer.
type Result struct {
	Authorized bool
	Reference  string
	Reason     string
}

// Gateway is the external settlement collaborator. Implementations must
// honour the context deadline; the orchestrator treats a deadline error as
// ErrSettlementTimeout.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error)
}

// Repository persists payment attempts. CreateProcessing must fail with
// ErrPaymentInProgress when the cart already has a Processing attempt.
type Repository interface {
	CreateProcessing(ctx context.Context, a *Attempt) error
	MarkFailed(ctx context.Context, id string, settledAt time.Time) error
	SetDetached(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Attempt, error)
}

// CheckoutStore finalizes a successful attempt as a single atomic unit:
// every held reservation of the cart committed, the order recorded, the
// attempt marked succeeded, and the cart emptied, or none of it.
type CheckoutStore interface {
	CommitSuccess(ctx context.Context, attemptID string, o *order.Order) error
}

// CartFlags mutates the cart's payment bookkeeping.
type CartFlags interface {
	// IncrementAttempts bumps the failed-attempt counter and returns the
	// new value.
	IncrementAttempts(ctx context.Context, cartID string) (int, error)
	// SetCheckoutBlocked flags the cart as terminal for checkout.
	SetCheckoutBlocked(ctx context.Context, cartID string) error
}
