package promo

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	rules map[string]*Rule
	err   error
	calls int
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rules[code]
	if !ok {
		return nil, ErrInvalidPromoCode
	}
	return r, nil
}

func (m *mockRepo) ListCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.rules))
	for c := range m.rules {
		codes = append(codes, c)
	}
	return codes, nil
}

func items(prices ...int64) []Item {
	out := make([]Item, len(prices))
	for i, p := range prices {
		out[i] = Item{ProductID: "p", Price: decimal.NewFromInt(p), Quantity: 1}
	}
	return out
}

func TestApply_Percentage(t *testing.T) {
	rule := &Rule{Code: "TABASKI20", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(20)}

	d, err := Apply(rule, items(10_000, 5_000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3_000).Equal(d.Amount))
}

func TestApply_FixedCappedAtSubtotal(t *testing.T) {
	rule := &Rule{Code: "MOINS5000", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5_000)}

	d, err := Apply(rule, items(2_000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2_000).Equal(d.Amount))
}

func TestApply_FreeLowest(t *testing.T) {
	rule := &Rule{Code: "CADEAU", DiscountType: DiscountFreeLowest}

	d, err := Apply(rule, items(10_000, 3_000, 7_500))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3_000).Equal(d.Amount))
}

func TestApply_MinItemsNotMet(t *testing.T) {
	rule := &Rule{Code: "LOT3", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), MinItems: 3}

	_, err := Apply(rule, items(10_000))
	require.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestApply_UnknownType(t *testing.T) {
	rule := &Rule{Code: "X", DiscountType: "mystery"}

	_, err := Apply(rule, items(1_000))
	require.Error(t, err)
}

func TestRepoValidator_CaseInsensitive(t *testing.T) {
	repo := &mockRepo{rules: map[string]*Rule{
		"TERANGA10": {Code: "TERANGA10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
	}}
	v := NewRepoValidator(repo)

	d, err := v.Validate(context.Background(), "teranga10", items(10_000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1_000).Equal(d.Amount))
}

func TestRepoValidator_UnknownCode(t *testing.T) {
	v := NewRepoValidator(&mockRepo{rules: map[string]*Rule{}})

	_, err := v.Validate(context.Background(), "NOPE", items(10_000))
	require.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestBloomValidator_ShortCircuitsUnknownCodes(t *testing.T) {
	repo := &mockRepo{rules: map[string]*Rule{
		"TERANGA10": {Code: "TERANGA10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
	}}
	inner := NewRepoValidator(repo)
	v, err := NewBloomValidator(context.Background(), repo, inner)
	require.NoError(t, err)
	repo.calls = 0

	_, err = v.Validate(context.Background(), "DEFINITELY-NOT-A-CODE", items(10_000))
	require.ErrorIs(t, err, ErrInvalidPromoCode)
	assert.Zero(t, repo.calls, "filter miss must not hit the repository")

	d, err := v.Validate(context.Background(), "TERANGA10", items(10_000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1_000).Equal(d.Amount))
	assert.Equal(t, 1, repo.calls)
}
