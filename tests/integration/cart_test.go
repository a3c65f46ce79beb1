//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type updateItemRequest struct {
	Qty int `json:"qty"`
}

func TestCartFlow(t *testing.T) {
	const owner = "it-cart-flow"

	resp := do(t, http.MethodGet, "/api/cart", owner, nil, nil)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Lines) != 0 {
		t.Fatalf("fresh cart has %d lines", len(c.Lines))
	}

	resp = do(t, http.MethodPost, "/api/cart/items", owner, addItemRequest{ProductID: "panier-tresse", Qty: 2}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(c.Lines))
	}
	line := c.Lines[0]
	if line.Qty != 2 || line.Subtotal != "20000" {
		t.Errorf("line: got qty=%d subtotal=%s, want qty=2 subtotal=20000", line.Qty, line.Subtotal)
	}

	// Adding the same product merges into the existing line.
	resp = do(t, http.MethodPost, "/api/cart/items", owner, addItemRequest{ProductID: "panier-tresse", Qty: 1}, nil)
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Lines) != 1 || c.Lines[0].Qty != 3 {
		t.Fatalf("merge: got %d lines, qty %d", len(c.Lines), c.Lines[0].Qty)
	}

	resp = do(t, http.MethodPatch, "/api/cart/items/"+line.ID, owner, updateItemRequest{Qty: 1}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update item: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if c.Lines[0].Qty != 1 || c.Lines[0].Subtotal != "10000" {
		t.Errorf("after update: qty=%d subtotal=%s", c.Lines[0].Qty, c.Lines[0].Subtotal)
	}

	resp = do(t, http.MethodDelete, "/api/cart/items/"+line.ID, owner, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove item: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Lines) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(c.Lines))
	}
}

func TestAddItem_OutOfStock(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/cart/items", "it-out-of-stock",
		addItemRequest{ProductID: "tambour-sabar", Qty: 6}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/cart/items", "it-unknown-product",
		addItemRequest{ProductID: "no-such-product", Qty: 1}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAddItem_MissingOwnerHeader(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/cart/items", "",
		addItemRequest{ProductID: "panier-tresse", Qty: 1}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
