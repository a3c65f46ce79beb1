package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terangacraft/marketplace/internal/domain/product"
	"github.com/terangacraft/marketplace/internal/domain/stock"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts     map[string]*Cart // by owner key
	upsertErr error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*Cart)}
}

func (m *mockCartRepo) GetOrCreateByOwner(_ context.Context, ownerKey string) (*Cart, error) {
	if c, ok := m.carts[ownerKey]; ok {
		return c.clone(), nil
	}
	c := &Cart{ID: "cart-" + ownerKey, OwnerKey: ownerKey, CreatedAt: time.Now()}
	m.carts[ownerKey] = c
	return c.clone(), nil
}

func (m *mockCartRepo) GetByOwner(_ context.Context, ownerKey string) (*Cart, error) {
	c, ok := m.carts[ownerKey]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (m *mockCartRepo) GetByID(_ context.Context, id string) (*Cart, error) {
	for _, c := range m.carts {
		if c.ID == id {
			return c.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockCartRepo) UpsertLine(_ context.Context, line Line) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, c := range m.carts {
		if c.ID != line.CartID {
			continue
		}
		c.UpdatedAt = time.Now()
		for i := range c.Lines {
			if c.Lines[i].ID == line.ID {
				c.Lines[i] = line
				return nil
			}
		}
		c.Lines = append(c.Lines, line)
		return nil
	}
	return ErrNotFound
}

func (m *mockCartRepo) DeleteLine(_ context.Context, cartID, lineID string) error {
	for _, c := range m.carts {
		if c.ID != cartID {
			continue
		}
		for i := range c.Lines {
			if c.Lines[i].ID == lineID {
				c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
				return nil
			}
		}
	}
	return ErrLineNotFound
}

func (m *mockCartRepo) DeleteLines(_ context.Context, cartID string) error {
	for _, c := range m.carts {
		if c.ID == cartID {
			c.Lines = nil
		}
	}
	return nil
}

func (c *Cart) clone() *Cart {
	cp := *c
	cp.Lines = append([]Line(nil), c.Lines...)
	return &cp
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// --- Helpers ---

func newFixture(available map[string]int) (*Service, *mockCartRepo, *stock.MemoryLedger) {
	products := &mockProductRepo{byID: make(map[string]*product.Product)}
	for id := range available {
		products.byID[id] = &product.Product{
			ID:     id,
			Name:   "Panier " + id,
			Price:  decimal.NewFromInt(10_000),
			Active: true,
		}
	}
	ledger := stock.NewMemoryLedger(available)
	carts := newMockCartRepo()
	svc := NewService(carts, products, ledger, 30*time.Minute)
	return svc, carts, ledger
}

// --- Tests ---

func TestAddItem_CreatesCartLazily(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 5})

	c, err := svc.AddItem(context.Background(), "buyer-1", "p1", 2)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Qty)
	assert.True(t, decimal.NewFromInt(10_000).Equal(c.Lines[0].UnitPrice))
	assert.Equal(t, 3, ledger.Available("p1"))
}

func TestAddItem_MergesExistingLine(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "p1", 2)
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "buyer-1", "p1", 3)
	require.NoError(t, err)

	require.Len(t, c.Lines, 1, "product appears in at most one line")
	assert.Equal(t, 5, c.Lines[0].Qty)
	assert.Equal(t, 5, ledger.Available("p1"))
}

func TestAddItem_QuantityBounds(t *testing.T) {
	svc, _, _ := newFixture(map[string]int{"p1": 100})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "buyer-1", "p1", 11)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	// Merge pushing past the cap is rejected before any reservation.
	_, err = svc.AddItem(ctx, "buyer-1", "p1", 8)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "buyer-1", "p1", 5)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItem_OutOfStockLeavesAvailableUntouched(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 1})

	_, err := svc.AddItem(context.Background(), "buyer-1", "p1", 2)
	require.ErrorIs(t, err, stock.ErrOutOfStock)
	assert.Equal(t, 1, ledger.Available("p1"))
}

func TestAddItem_LineWriteFailureReleasesHold(t *testing.T) {
	svc, carts, ledger := newFixture(map[string]int{"p1": 5})
	ctx := context.Background()

	// Create the cart first so GetOrCreate succeeds, then break writes.
	_, err := svc.AddItem(ctx, "buyer-1", "p1", 1)
	require.NoError(t, err)
	carts.upsertErr = errors.New("db down")

	_, err = svc.AddItem(ctx, "buyer-1", "p1", 2)
	require.Error(t, err)
	assert.Equal(t, 4, ledger.Available("p1"), "failed mutation must not leak a hold")
}

func TestUpdateQuantity_ReservesPositiveDelta(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "buyer-1", "p1", 2)
	require.NoError(t, err)

	c, err = svc.UpdateQuantity(ctx, "buyer-1", c.Lines[0].ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Lines[0].Qty)
	assert.Equal(t, 4, ledger.Available("p1"))
}

func TestUpdateQuantity_ReleasesNegativeDelta(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "buyer-1", "p1", 6)
	require.NoError(t, err)

	c, err = svc.UpdateQuantity(ctx, "buyer-1", c.Lines[0].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Lines[0].Qty)
	assert.Equal(t, 8, ledger.Available("p1"))
}

func TestUpdateQuantity_RejectsZero(t *testing.T) {
	svc, _, _ := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "buyer-1", "p1", 2)
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, "buyer-1", c.Lines[0].ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRemoveItem_ReleasesFully(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "buyer-1", "p1", 4)
	require.NoError(t, err)

	c, err = svc.RemoveItem(ctx, "buyer-1", c.Lines[0].ID)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Equal(t, 10, ledger.Available("p1"))
}

func TestRemoveItem_UnknownLine(t *testing.T) {
	svc, _, _ := newFixture(map[string]int{"p1": 10})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "p1", 1)
	require.NoError(t, err)

	_, err = svc.RemoveItem(ctx, "buyer-1", "nope")
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestEmpty_ReleasesEverything(t *testing.T) {
	svc, _, ledger := newFixture(map[string]int{"p1": 10, "p2": 5})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "p1", 3)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "buyer-1", "p2", 2)
	require.NoError(t, err)

	require.NoError(t, svc.Empty(ctx, "buyer-1"))
	c, err := svc.Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Equal(t, 10, ledger.Available("p1"))
	assert.Equal(t, 5, ledger.Available("p2"))
}

func TestGet_UnknownOwner(t *testing.T) {
	svc, _, _ := newFixture(nil)

	_, err := svc.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
