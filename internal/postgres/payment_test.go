package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terangacraft/marketplace/internal/domain/order"
	"github.com/terangacraft/marketplace/internal/domain/payment"
)

func orderLines(qtys map[string]int) []order.Line {
	lines := make([]order.Line, 0, len(qtys))
	for id, qty := range qtys {
		lines = append(lines, order.Line{ProductID: id, Qty: qty, UnitPrice: decimal.NewFromInt(1_000)})
	}
	return lines
}

func TestVerifyHoldCoverage_Covered(t *testing.T) {
	lines := orderLines(map[string]int{"p1": 2, "p2": 1})

	err := verifyHoldCoverage(lines, []committedHold{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 1},
	})
	assert.NoError(t, err)
}

func TestVerifyHoldCoverage_SplitHolds(t *testing.T) {
	// A line built up by repeated AddItem calls is backed by several
	// reservation rows; their quantities add up.
	lines := orderLines(map[string]int{"p1": 3})

	err := verifyHoldCoverage(lines, []committedHold{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 1},
	})
	assert.NoError(t, err)
}

func TestVerifyHoldCoverage_SweptHoldFailsClosed(t *testing.T) {
	// The sweeper released one of the holds between the orchestrator's
	// pre-checks and the commit transaction: the commit must roll back
	// rather than record a sale for units already back in stock.
	lines := orderLines(map[string]int{"p1": 2, "p2": 1})

	err := verifyHoldCoverage(lines, []committedHold{
		{ProductID: "p1", Qty: 2},
	})
	require.ErrorIs(t, err, payment.ErrStaleCart)
}

func TestVerifyHoldCoverage_NoHoldsAtAll(t *testing.T) {
	lines := orderLines(map[string]int{"p1": 1})

	err := verifyHoldCoverage(lines, nil)
	require.ErrorIs(t, err, payment.ErrStaleCart)
}
