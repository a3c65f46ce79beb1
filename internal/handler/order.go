package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terangacraft/marketplace/internal/domain/order"
)

type orderLineResponse struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Lines         []orderLineResponse `json:"lines"`
	Subtotal      string              `json:"subtotal"`
	DeliveryFee   string              `json:"delivery_fee"`
	PromoDiscount string              `json:"promo_discount"`
	Total         string              `json:"total"`
	PromoCode     string              `json:"promo_code,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ListOrders returns the buyer's committed orders, newest first.
func (h *Handler) ListOrders(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	list, err := h.orders.ListByBuyer(c.Request.Context(), owner)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	resp := make([]orderResponse, len(list))
	for i := range list {
		resp[i] = toOrderResponse(&list[i])
	}
	c.JSON(http.StatusOK, resp)
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice.String(),
		}
	}
	return orderResponse{
		ID:            o.ID,
		Lines:         lines,
		Subtotal:      o.Subtotal.String(),
		DeliveryFee:   o.DeliveryFee.String(),
		PromoDiscount: o.PromoDiscount.String(),
		Total:         o.Total.String(),
		PromoCode:     o.PromoCode,
		CreatedAt:     o.CreatedAt,
	}
}
