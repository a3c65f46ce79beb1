// Package handler exposes the marketplace over HTTP with gin. Handlers bind
// and validate transport concerns only; every decision belongs to the domain
// services they delegate to.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/terangacraft/marketplace/internal/domain/artisan"
	"github.com/terangacraft/marketplace/internal/domain/cart"
	"github.com/terangacraft/marketplace/internal/domain/order"
	"github.com/terangacraft/marketplace/internal/domain/payment"
	"github.com/terangacraft/marketplace/internal/domain/pricing"
	"github.com/terangacraft/marketplace/internal/domain/product"
	"github.com/terangacraft/marketplace/internal/domain/promo"
	"github.com/terangacraft/marketplace/internal/domain/stock"
)

// ownerHeader carries the opaque buyer identity: an authenticated user key
// or an anonymous session token, minted by the auth layer in front of us.
const ownerHeader = "X-Cart-Owner"

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	payments *payment.Orchestrator
	workflow *artisan.Workflow
	orders   order.Repository
	engine   *pricing.Engine
	promos   promo.Validator
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	payments *payment.Orchestrator,
	workflow *artisan.Workflow,
	orders order.Repository,
	engine *pricing.Engine,
	promos promo.Validator,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		payments: payments,
		workflow: workflow,
		orders:   orders,
		engine:   engine,
		promos:   promos,
		security: security,
	}
}

// Routes registers every endpoint on the given engine.
func (h *Handler) Routes(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)

	api.GET("/cart", h.GetCart)
	api.POST("/cart/items", h.AddCartItem)
	api.PATCH("/cart/items/:lineID", h.UpdateCartItem)
	api.DELETE("/cart/items/:lineID", h.RemoveCartItem)

	api.POST("/checkout/quote", h.QuoteCheckout)

	api.POST("/payments", h.SubmitPayment)
	api.GET("/payments/:id", h.GetPayment)
	api.POST("/payments/:id/detach", h.DetachPayment)

	api.GET("/orders", h.ListOrders)

	api.POST("/artisans", h.RegisterArtisan)

	admin := api.Group("/admin", h.security.Middleware())
	admin.GET("/artisans", h.ListArtisans)
	admin.POST("/artisans/:id/validate", h.ValidateArtisan)
	admin.POST("/artisans/:id/suspend", h.SuspendArtisan)
	admin.DELETE("/artisans/:id", h.DeleteArtisan)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ownerKey extracts the buyer identity header, failing the request when it
// is absent.
func ownerKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(ownerHeader)
	if key == "" {
		abortError(c, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return "", false
	}
	return key, true
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps a domain error onto the wire. Anything unrecognized
// is a 500 with a generic body; the real error stays in the logs.
func writeDomainError(c *gin.Context, err error) {
	var instrumentErr *payment.InvalidInstrumentError
	var docsErr *artisan.IncompleteDocumentsError

	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrEmptyCart):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, artisan.ErrNotFound):
		abortError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, stock.ErrOutOfStock),
		errors.Is(err, payment.ErrPaymentInProgress),
		errors.Is(err, payment.ErrStaleCart),
		errors.Is(err, payment.ErrCheckoutBlocked),
		errors.Is(err, artisan.ErrStaleState),
		errors.Is(err, artisan.ErrAlreadyRegistered):
		abortError(c, http.StatusConflict, err.Error())
	case errors.Is(err, artisan.ErrDeleted):
		abortError(c, http.StatusGone, err.Error())
	case errors.Is(err, payment.ErrSettlementRejected):
		abortError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, payment.ErrSettlementTimeout):
		abortError(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, promo.ErrInvalidPromoCode),
		errors.As(err, &instrumentErr),
		errors.As(err, &docsErr):
		abortError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		_ = c.Error(err)
		abortError(c, http.StatusInternalServerError, "internal error")
	}
}
