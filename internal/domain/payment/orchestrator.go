package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/terangacraft/marketplace/internal/domain/cart"
	"github.com/terangacraft/marketplace/internal/domain/order"
	"github.com/terangacraft/marketplace/internal/domain/pricing"
	"github.com/terangacraft/marketplace/internal/domain/promo"
	"github.com/terangacraft/marketplace/internal/domain/stock"
)

// Config bounds the orchestrator's retry and timing behaviour.
type Config struct {
	// MaxAttempts is the failed-attempt budget per cart before it is
	// checkout-blocked.
	MaxAttempts int
	// SettlementTimeout caps how long a Processing attempt waits on the
	// settlement collaborator.
	SettlementTimeout time.Duration
	// ProcessingHold is how far reservation expiry is pushed out when an
	// attempt enters Processing, so the TTL sweeper cannot race an in-flight
	// settlement.
	ProcessingHold time.Duration
}

// SubmitRequest is a buyer's payment submission.
type SubmitRequest struct {
	OwnerKey string
	// DeclaredAmount is the total the buyer saw and agreed to pay. It is
	// re-validated against a fresh quote; a mismatch fails closed.
	DeclaredAmount decimal.Decimal
	PromoCode      string
	Instrument     Instrument
}

// Notifier dispatches the buyer's order confirmation after a successful
// checkout. Best effort: failures are logged, never returned to the buyer.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *order.Order) error
}

type noopNotifier struct{}

func (noopNotifier) OrderConfirmed(context.Context, *order.Order) error { return nil }

// Orchestrator drives payment attempts through the state machine.
type Orchestrator struct {
	carts    cart.Repository
	flags    CartFlags
	ledger   stock.Ledger
	engine   *pricing.Engine
	promos   promo.Validator
	attempts Repository
	checkout CheckoutStore
	gateway  Gateway
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewOrchestrator wires the orchestrator's collaborators. A nil notifier
// disables confirmation dispatch.
func NewOrchestrator(
	carts cart.Repository,
	flags CartFlags,
	ledger stock.Ledger,
	engine *pricing.Engine,
	promos promo.Validator,
	attempts Repository,
	checkout CheckoutStore,
	gateway Gateway,
	notifier Notifier,
	cfg Config,
) *Orchestrator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Orchestrator{
		carts:    carts,
		flags:    flags,
		ledger:   ledger,
		engine:   engine,
		promos:   promos,
		attempts: attempts,
		checkout: checkout,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Submit runs one full attempt: validation, amount and reservation re-checks,
// the settlement call, and on success the atomic checkout commit. The
// returned attempt reflects the final state; settlement failures come back as
// typed errors alongside it so callers can surface a retry affordance.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Attempt, error) {
	c, err := o.carts.GetByOwner(ctx, req.OwnerKey)
	if err != nil {
		return nil, err
	}
	if c.CheckoutBlocked {
		return nil, ErrCheckoutBlocked
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	now := o.now()
	if err := req.Instrument.Validate(now); err != nil {
		return nil, err
	}

	// Re-resolve the promo and recompute totals; the buyer's declared amount
	// must match exactly or we fail closed with a stale cart.
	discount := decimal.Zero
	if req.PromoCode != "" {
		d, err := o.promos.Validate(ctx, req.PromoCode, promoItems(c.Lines))
		if err != nil {
			return nil, err
		}
		discount = d.Amount
	}
	totals := o.engine.Quote(c.Lines, discount)
	if !totals.Total.Equal(req.DeclaredAmount) {
		return nil, ErrStaleCart
	}

	if err := o.checkHolds(ctx, c, now); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:        uuid.New().String(),
		CartID:    c.ID,
		Method:    req.Instrument.Method,
		State:     StateProcessing,
		Amount:    totals.Total,
		CreatedAt: now,
	}
	if err := o.attempts.CreateProcessing(ctx, attempt); err != nil {
		return nil, err
	}

	// Keep the sweeper away from the holds for the duration of settlement.
	if err := o.ledger.ExtendHold(ctx, c.ID, now.Add(o.cfg.ProcessingHold)); err != nil {
		zctx.From(ctx).Warn("extend hold for processing failed",
			zap.String("cart_id", c.ID), zap.Error(err))
	}

	res, settleErr := o.settle(ctx, attempt, req.Instrument)
	if settleErr != nil {
		return o.fail(ctx, attempt, settleErr)
	}
	if !res.Authorized {
		rejected := ErrSettlementRejected
		if res.Reason != "" {
			rejected = errors.Wrap(ErrSettlementRejected, res.Reason)
		}
		return o.fail(ctx, attempt, rejected)
	}

	// Settlement authorized: commit reservations, record the order, mark the
	// attempt succeeded, and clear the cart in one transaction.
	ord := buildOrder(c, attempt, totals, req.PromoCode, o.now())
	if err := o.checkout.CommitSuccess(ctx, attempt.ID, ord); err != nil {
		// The money side authorized but our commit failed; the attempt is
		// marked failed so the buyer can retry while reservations stay held.
		zctx.From(ctx).Error("checkout commit failed after authorization",
			zap.String("attempt_id", attempt.ID),
			zap.String("settlement_ref", res.Reference),
			zap.Error(err),
		)
		return o.fail(ctx, attempt, errors.Wrap(err, "commit checkout"))
	}

	attempt.State = StateSucceeded
	attempt.SettledAt = &ord.CreatedAt
	o.notifyConfirmed(ctx, ord)
	return attempt, nil
}

// Resolve returns the attempt's current state; the UI polls this after a
// dialog detach rather than trusting its own optimism.
func (o *Orchestrator) Resolve(ctx context.Context, attemptID string) (*Attempt, error) {
	return o.attempts.GetByID(ctx, attemptID)
}

// Detach records that the buyer closed the payment dialog while the attempt
// was in flight. The in-flight settlement is never cancelled; the state
// machine resolves on its own and the cart stays locked until it does.
func (o *Orchestrator) Detach(ctx context.Context, attemptID string) (*Attempt, error) {
	if err := o.attempts.SetDetached(ctx, attemptID); err != nil {
		return nil, err
	}
	return o.attempts.GetByID(ctx, attemptID)
}

// settle calls the gateway under the configured deadline.
func (o *Orchestrator) settle(ctx context.Context, attempt *Attempt, in Instrument) (*Result, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SettlementTimeout)
	defer cancel()

	res, err := o.gateway.Authorize(sctx, AuthorizeRequest{
		AttemptID:  attempt.ID,
		Method:     attempt.Method,
		Amount:     attempt.Amount,
		Instrument: in,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSettlementTimeout
		}
		return nil, errors.Wrap(err, "settlement call")
	}
	return res, nil
}

// fail transitions the attempt to Failed, charges the cart's retry budget,
// and blocks checkout once the budget is spent. Reservations stay held until
// the buyer retries, mutates the cart, or the TTL sweeper reclaims them.
func (o *Orchestrator) fail(ctx context.Context, attempt *Attempt, cause error) (*Attempt, error) {
	settled := o.now()
	if err := o.attempts.MarkFailed(ctx, attempt.ID, settled); err != nil {
		zctx.From(ctx).Error("mark attempt failed",
			zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
	attempt.State = StateFailed
	attempt.SettledAt = &settled

	n, err := o.flags.IncrementAttempts(ctx, attempt.CartID)
	if err != nil {
		zctx.From(ctx).Error("increment attempts",
			zap.String("cart_id", attempt.CartID), zap.Error(err))
		return attempt, cause
	}
	if n >= o.cfg.MaxAttempts {
		if err := o.flags.SetCheckoutBlocked(ctx, attempt.CartID); err != nil {
			zctx.From(ctx).Error("block checkout",
				zap.String("cart_id", attempt.CartID), zap.Error(err))
		}
	}
	return attempt, cause
}

// checkHolds verifies every line is still fully covered by unexpired holds.
func (o *Orchestrator) checkHolds(ctx context.Context, c *cart.Cart, now time.Time) error {
	held, err := o.ledger.HeldByCart(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "list holds")
	}

	covered := make(map[string]int, len(held))
	for _, r := range held {
		if r.Expired(now) {
			return ErrStaleCart
		}
		covered[r.ProductID] += r.Qty
	}
	for _, l := range c.Lines {
		if covered[l.ProductID] < l.Qty {
			return ErrStaleCart
		}
	}
	return nil
}

func (o *Orchestrator) notifyConfirmed(ctx context.Context, ord *order.Order) {
	if err := o.notifier.OrderConfirmed(ctx, ord); err != nil {
		zctx.From(ctx).Warn("order confirmation failed",
			zap.String("order_id", ord.ID),
			zap.Error(err),
		)
	}
}

func promoItems(lines []cart.Line) []promo.Item {
	items := make([]promo.Item, len(lines))
	for i, l := range lines {
		items[i] = promo.Item{ProductID: l.ProductID, Price: l.UnitPrice, Quantity: l.Qty}
	}
	return items
}

// buildOrder assembles the immutable order record. Its CreatedAt doubles as
// the attempt's settled_at so the two rows carry one settlement instant.
func buildOrder(c *cart.Cart, attempt *Attempt, totals pricing.Totals, promoCode string, now time.Time) *order.Order {
	lines := make([]order.Line, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = order.Line{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice}
	}
	return &order.Order{
		ID:            uuid.New().String(),
		CartID:        c.ID,
		AttemptID:     attempt.ID,
		BuyerKey:      c.OwnerKey,
		Lines:         lines,
		Subtotal:      totals.Subtotal,
		DeliveryFee:   totals.DeliveryFee,
		PromoDiscount: totals.PromoDiscount,
		Total:         totals.Total,
		PromoCode:     promoCode,
		CreatedAt:     now,
	}
}
