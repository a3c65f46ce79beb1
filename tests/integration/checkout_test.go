//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type quoteRequest struct {
	PromoCode string `json:"promo_code,omitempty"`
}

type mobileMoneyRequest struct {
	Phone            string `json:"phone"`
	ConfirmationCode string `json:"confirmation_code"`
}

type submitPaymentRequest struct {
	DeclaredAmount string              `json:"declared_amount"`
	PromoCode      string              `json:"promo_code,omitempty"`
	Method         string              `json:"method"`
	MobileMoney    *mobileMoneyRequest `json:"mobile_money,omitempty"`
}

func addToCart(t *testing.T, owner, productID string, qty int) cartResponse {
	t.Helper()

	resp := do(t, http.MethodPost, "/api/cart/items", owner, addItemRequest{ProductID: productID, Qty: qty}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add %s x%d: expected 200, got %d", productID, qty, resp.StatusCode)
	}
	return decodeJSON[cartResponse](t, resp)
}

func TestQuoteAndPay(t *testing.T) {
	const owner = "it-quote-and-pay"

	addToCart(t, owner, "collier-perles", 2)

	resp := do(t, http.MethodPost, "/api/checkout/quote", owner, quoteRequest{}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quote: expected 200, got %d", resp.StatusCode)
	}
	q := decodeJSON[quoteResponse](t, resp)
	resp.Body.Close()

	if q.Subtotal != "15000" || q.DeliveryFee != "2500" || q.Total != "17500" {
		t.Fatalf("quote: got subtotal=%s delivery=%s total=%s", q.Subtotal, q.DeliveryFee, q.Total)
	}

	resp = do(t, http.MethodPost, "/api/payments", owner, submitPaymentRequest{
		DeclaredAmount: q.Total,
		Method:         "mobile_money",
		MobileMoney:    &mobileMoneyRequest{Phone: "221771234567", ConfirmationCode: "123456"},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d", resp.StatusCode)
	}
	attempt := decodeJSON[attemptResponse](t, resp)
	resp.Body.Close()

	if attempt.State != "succeeded" {
		t.Fatalf("attempt state: got %q, want succeeded", attempt.State)
	}
	if attempt.Amount != "17500" {
		t.Errorf("attempt amount: got %q", attempt.Amount)
	}

	// The successful attempt is queryable by ID.
	resp = do(t, http.MethodGet, "/api/payments/"+attempt.ID, owner, nil, nil)
	got := decodeJSON[attemptResponse](t, resp)
	resp.Body.Close()
	if got.State != "succeeded" {
		t.Errorf("get attempt: state %q", got.State)
	}

	// The order is recorded and the cart is emptied.
	resp = do(t, http.MethodGet, "/api/orders", owner, nil, nil)
	orders := decodeJSON[[]orderResponse](t, resp)
	resp.Body.Close()
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].Total != "17500" {
		t.Errorf("order total: got %q", orders[0].Total)
	}
	if len(orders[0].Lines) != 1 || orders[0].Lines[0].Qty != 2 {
		t.Errorf("order lines: %+v", orders[0].Lines)
	}

	resp = do(t, http.MethodGet, "/api/cart", owner, nil, nil)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Lines) != 0 {
		t.Errorf("cart not emptied after checkout: %d lines", len(c.Lines))
	}
}

func TestQuote_FreeDeliveryThreshold(t *testing.T) {
	const owner = "it-free-delivery"

	addToCart(t, owner, "boubou-brode", 1)

	resp := do(t, http.MethodPost, "/api/checkout/quote", owner, quoteRequest{}, nil)
	defer resp.Body.Close()
	q := decodeJSON[quoteResponse](t, resp)

	if q.Subtotal != "60000" || q.DeliveryFee != "0" || q.Total != "60000" {
		t.Errorf("quote: got subtotal=%s delivery=%s total=%s", q.Subtotal, q.DeliveryFee, q.Total)
	}
}

func TestQuote_PromoCode(t *testing.T) {
	const owner = "it-promo-quote"

	addToCart(t, owner, "panier-tresse", 2)

	resp := do(t, http.MethodPost, "/api/checkout/quote", owner, quoteRequest{PromoCode: "TERANGA10"}, nil)
	defer resp.Body.Close()
	q := decodeJSON[quoteResponse](t, resp)

	if q.PromoDiscount != "2000" || q.Total != "20500" {
		t.Errorf("quote: got discount=%s total=%s, want discount=2000 total=20500", q.PromoDiscount, q.Total)
	}
}

func TestQuote_InvalidPromoCode(t *testing.T) {
	const owner = "it-bad-promo"

	addToCart(t, owner, "panier-tresse", 1)

	resp := do(t, http.MethodPost, "/api/checkout/quote", owner, quoteRequest{PromoCode: "NOPE123"}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPay_AmountMismatch(t *testing.T) {
	const owner = "it-amount-mismatch"

	addToCart(t, owner, "panier-tresse", 1)

	resp := do(t, http.MethodPost, "/api/payments", owner, submitPaymentRequest{
		DeclaredAmount: "99999",
		Method:         "mobile_money",
		MobileMoney:    &mobileMoneyRequest{Phone: "221771234567", ConfirmationCode: "123456"},
	}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestPay_EmptyCart(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/payments", "it-empty-cart", submitPaymentRequest{
		DeclaredAmount: "2500",
		Method:         "mobile_money",
		MobileMoney:    &mobileMoneyRequest{Phone: "221771234567", ConfirmationCode: "123456"},
	}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPay_InvalidInstrument(t *testing.T) {
	const owner = "it-bad-instrument"

	addToCart(t, owner, "collier-perles", 1)

	resp := do(t, http.MethodPost, "/api/payments", owner, submitPaymentRequest{
		DeclaredAmount: "10000",
		Method:         "mobile_money",
		MobileMoney:    &mobileMoneyRequest{Phone: "abc", ConfirmationCode: "12"},
	}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}
