package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terangacraft/marketplace/internal/domain/cart"
	"github.com/terangacraft/marketplace/internal/domain/promo"
)

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Qty       int    `json:"qty" binding:"required"`
}

type updateItemRequest struct {
	Qty int `json:"qty" binding:"required"`
}

type cartLineResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type cartResponse struct {
	ID              string             `json:"id"`
	CheckoutBlocked bool               `json:"checkout_blocked"`
	Lines           []cartLineResponse `json:"lines"`
}

// GetCart returns the owner's cart snapshot, creating it on first touch.
func (h *Handler) GetCart(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	snapshot, err := h.carts.Get(c.Request.Context(), owner)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snapshot))
}

// AddCartItem adds units of a product, merging into an existing line.
func (h *Handler) AddCartItem(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.carts.AddItem(c.Request.Context(), owner, req.ProductID, req.Qty)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snapshot))
}

// UpdateCartItem changes a line's quantity.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.carts.UpdateQuantity(c.Request.Context(), owner, c.Param("lineID"), req.Qty)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snapshot))
}

// RemoveCartItem drops a line and releases its stock holds.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	snapshot, err := h.carts.RemoveItem(c.Request.Context(), owner, c.Param("lineID"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snapshot))
}

type quoteRequest struct {
	PromoCode string `json:"promo_code"`
}

type quoteResponse struct {
	Subtotal      string `json:"subtotal"`
	DeliveryFee   string `json:"delivery_fee"`
	PromoDiscount string `json:"promo_discount"`
	Total         string `json:"total"`
	PromoApplied  string `json:"promo_applied,omitempty"`
}

// QuoteCheckout prices the owner's current cart. The quote is advisory; the
// amount is recomputed and re-validated at payment submission.
func (h *Handler) QuoteCheckout(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.carts.Get(c.Request.Context(), owner)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	var (
		discount    = promo.Discount{}
		description string
	)
	if req.PromoCode != "" {
		d, err := h.promos.Validate(c.Request.Context(), req.PromoCode, promoItems(snapshot.Lines))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		discount = *d
		description = d.Description
	}

	totals := h.engine.Quote(snapshot.Lines, discount.Amount)
	c.JSON(http.StatusOK, quoteResponse{
		Subtotal:      totals.Subtotal.String(),
		DeliveryFee:   totals.DeliveryFee.String(),
		PromoDiscount: totals.PromoDiscount.String(),
		Total:         totals.Total.String(),
		PromoApplied:  description,
	})
}

func toCartResponse(snapshot *cart.Cart) cartResponse {
	lines := make([]cartLineResponse, len(snapshot.Lines))
	for i, l := range snapshot.Lines {
		lines[i] = cartLineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice.String(),
			Subtotal:  l.Subtotal().String(),
		}
	}
	return cartResponse{
		ID:              snapshot.ID,
		CheckoutBlocked: snapshot.CheckoutBlocked,
		Lines:           lines,
	}
}

func promoItems(lines []cart.Line) []promo.Item {
	items := make([]promo.Item, len(lines))
	for i, l := range lines {
		items[i] = promo.Item{ProductID: l.ProductID, Price: l.UnitPrice, Quantity: l.Qty}
	}
	return items
}
