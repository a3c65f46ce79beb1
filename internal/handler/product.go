package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terangacraft/marketplace/internal/domain/product"
)

type productResponse struct {
	ID           string `json:"id"`
	ArtisanID    string `json:"artisan_id,omitempty"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	AvailableQty int    `json:"available_qty"`
}

// ListProducts returns the active catalog.
func (h *Handler) ListProducts(c *gin.Context) {
	items, err := h.products.List(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}

	out := make([]productResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toProductResponse(&p))
	}
	c.JSON(http.StatusOK, out)
}

// GetProduct returns a single active product by ID.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		ArtisanID:    p.ArtisanID,
		Name:         p.Name,
		Price:        p.Price.String(),
		AvailableQty: p.AvailableQty,
	}
}
