// Package settlement provides the production implementation of the payment
// gateway collaborator: a thin HTTP client against the configured provider
// endpoint. The authorization decision is entirely the provider's; this
// client only carries the request and maps the typed answer back.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/terangacraft/marketplace/internal/domain/payment"
)

// HTTPGateway implements payment.Gateway over a provider HTTP endpoint.
type HTTPGateway struct {
	url    string
	client *http.Client
}

var _ payment.Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway client. The context deadline set by the
// orchestrator governs the call; the client itself sets no timeout.
func NewHTTPGateway(url string) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		client: &http.Client{},
	}
}

type authorizePayload struct {
	AttemptID string `json:"attempt_id"`
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	Phone     string `json:"phone,omitempty"`
	CardLast4 string `json:"card_last4,omitempty"`
}

type authorizeResponse struct {
	Authorized bool   `json:"authorized"`
	Reference  string `json:"reference"`
	Reason     string `json:"reason"`
}

// Authorize posts the attempt to the provider and returns its decision.
// Sensitive instrument fields never leave the process: only the phone number
// or the card's last four digits are sent for reconciliation.
func (g *HTTPGateway) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Result, error) {
	p := authorizePayload{
		AttemptID: req.AttemptID,
		Method:    string(req.Method),
		Amount:    req.Amount.StringFixed(0),
	}
	if d := req.Instrument.MobileMoney; d != nil {
		p.Phone = d.Phone
	}
	if d := req.Instrument.Card; d != nil && len(d.Number) >= 4 {
		p.CardLast4 = d.Number[len(d.Number)-4:]
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("provider returned %d", resp.StatusCode)
	}

	var decoded authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	return &payment.Result{
		Authorized: decoded.Authorized,
		Reference:  decoded.Reference,
		Reason:     decoded.Reason,
	}, nil
}

// StaticGateway always answers with a fixed result after an optional delay.
// It backs local development when no provider endpoint is configured.
type StaticGateway struct {
	Result payment.Result
	Delay  time.Duration
}

var _ payment.Gateway = (*StaticGateway)(nil)

// Authorize returns the configured result, honouring context cancellation
// during the delay.
func (g *StaticGateway) Authorize(ctx context.Context, _ payment.AuthorizeRequest) (*payment.Result, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	res := g.Result
	return &res, nil
}
