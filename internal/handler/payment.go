package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/terangacraft/marketplace/internal/domain/payment"
)

type mobileMoneyRequest struct {
	Phone            string `json:"phone"`
	ConfirmationCode string `json:"confirmation_code"`
}

type cardRequest struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Holder string `json:"holder"`
}

type submitPaymentRequest struct {
	// DeclaredAmount is the total the buyer saw. A mismatch with the
	// recomputed quote rejects the submission.
	DeclaredAmount decimal.Decimal     `json:"declared_amount"`
	PromoCode      string              `json:"promo_code"`
	Method         string              `json:"method" binding:"required"`
	MobileMoney    *mobileMoneyRequest `json:"mobile_money"`
	Card           *cardRequest        `json:"card"`
}

type attemptResponse struct {
	ID        string     `json:"id"`
	CartID    string     `json:"cart_id"`
	Method    string     `json:"method"`
	State     string     `json:"state"`
	Amount    string     `json:"amount"`
	Detached  bool       `json:"detached"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// SubmitPayment runs one payment attempt against the owner's cart.
func (h *Handler) SubmitPayment(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	attempt, err := h.payments.Submit(c.Request.Context(), payment.SubmitRequest{
		OwnerKey:       owner,
		DeclaredAmount: req.DeclaredAmount,
		PromoCode:      req.PromoCode,
		Instrument:     toInstrument(req),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAttemptResponse(attempt))
}

// GetPayment returns an attempt's current state. The UI polls this after a
// dialog detach.
func (h *Handler) GetPayment(c *gin.Context) {
	attempt, err := h.payments.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

// DetachPayment records that the buyer closed the payment dialog while the
// attempt was in flight. The attempt itself keeps running.
func (h *Handler) DetachPayment(c *gin.Context) {
	attempt, err := h.payments.Detach(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

func toInstrument(req submitPaymentRequest) payment.Instrument {
	in := payment.Instrument{Method: payment.Method(req.Method)}
	if req.MobileMoney != nil {
		in.MobileMoney = &payment.MobileMoneyDetails{
			Phone:            req.MobileMoney.Phone,
			ConfirmationCode: req.MobileMoney.ConfirmationCode,
		}
	}
	if req.Card != nil {
		in.Card = &payment.CardDetails{
			Number: req.Card.Number,
			Expiry: req.Card.Expiry,
			CVV:    req.Card.CVV,
			Holder: req.Card.Holder,
		}
	}
	return in
}

func toAttemptResponse(a *payment.Attempt) attemptResponse {
	return attemptResponse{
		ID:        a.ID,
		CartID:    a.CartID,
		Method:    string(a.Method),
		State:     string(a.State),
		Amount:    a.Amount.String(),
		Detached:  a.Detached,
		CreatedAt: a.CreatedAt,
		SettledAt: a.SettledAt,
	}
}
