package promo

import (
	"context"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// Validator validates a promo code against a set of cart items and returns
// the computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item) (*Discount, error)
}

// RepoValidator implements Validator by looking up promo rules from a
// Repository and applying them via Apply.
type RepoValidator struct {
	repo Repository
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Validate looks up the rule for the given code and applies it to the cart
// items. Codes are case-insensitive.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	rule, err := v.repo.FindByCode(ctx, strings.ToUpper(code))
	if err != nil {
		if errors.Is(err, ErrInvalidPromoCode) {
			return nil, ErrInvalidPromoCode
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	d, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// BloomValidator fronts another Validator with a bloom filter over the known
// code set. Definitely-unknown codes are rejected without a database round
// trip; possible members fall through to the inner validator, so false
// positives cost only the lookup they would have done anyway.
type BloomValidator struct {
	inner  Validator
	filter *bloom.BloomFilter
}

// NewBloomValidator builds the filter from the repository's stored codes.
// Sized for the code count with a 0.1% false positive rate.
func NewBloomValidator(ctx context.Context, repo Repository, inner Validator) (*BloomValidator, error) {
	codes, err := repo.ListCodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promo codes")
	}

	n := uint(len(codes))
	if n == 0 {
		n = 1
	}
	filter := bloom.NewWithEstimates(n, 0.001)
	for _, code := range codes {
		filter.AddString(strings.ToUpper(code))
	}

	return &BloomValidator{inner: inner, filter: filter}, nil
}

// Validate short-circuits codes the filter has never seen.
func (v *BloomValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	if !v.filter.TestString(strings.ToUpper(code)) {
		return nil, ErrInvalidPromoCode
	}
	return v.inner.Validate(ctx, code, items)
}
