package settlement

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/notify"
	"github.com/millomarket/marketplace/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db.json"), models.Schema())
	require.NoError(t, err)
	return s
}

func seedProduct(t *testing.T, s *store.Store, p models.Product) models.Product {
	t.Helper()
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = models.SubActive
	}
	rec, err := models.ToRecord(p)
	require.NoError(t, err)
	created, err := s.Create(models.TableProducts, rec)
	require.NoError(t, err)
	require.NoError(t, models.FromRecord(created, &p))
	return p
}

func testBuyer() Buyer {
	return Buyer{Name: "Ada", Email: "ada@example.com", ShippingAddress: "1 Main St"}
}

func TestSettleSingleLine(t *testing.T) {
	s := testStore(t)
	product := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "mug", Price: 10, Stock: 5, Colors: []string{"red"},
	})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	result, err := engine.Settle(context.Background(),
		[]Line{{ProductID: product.ID, Color: "red", Quantity: 2}},
		testBuyer(),
		PaymentRef{IntentID: "pi_1", Status: "succeeded"},
	)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Empty(t, result.Failures)

	order := result.Orders[0]
	require.Equal(t, 20.0, order.Total)
	require.Equal(t, 3.0, order.Commission)
	require.Equal(t, 17.0, order.SellerAmount)
	require.Equal(t, models.OrderPending, order.Status)
	require.Equal(t, "user-1", string(order.SellerID))
	require.Equal(t, "pi_1", order.PaymentIntentID)
	require.NotEmpty(t, order.ID)

	got, err := models.ProductByID(s, product.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Stock)
}

func TestSettleRejectsOversell(t *testing.T) {
	s := testStore(t)
	product := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "mug", Price: 10, Stock: 5,
	})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	result, err := engine.Settle(context.Background(),
		[]Line{{ProductID: product.ID, Quantity: 10}},
		testBuyer(),
		PaymentRef{},
	)
	require.ErrorIs(t, err, ErrRejected)
	require.Empty(t, result.Orders)
	require.Len(t, result.Failures, 1)
	require.Contains(t, result.Failures[0].Reason, "insufficient stock")

	got, err := models.ProductByID(s, product.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Stock)

	n, err := s.Count(models.TableOrders)
	require.NoError(t, err)
	require.Zero(t, n)
}

// One bad line sinks the whole cart: the good line must not settle either.
func TestSettleAllOrNothing(t *testing.T) {
	s := testStore(t)
	good := seedProduct(t, s, models.Product{SellerID: "user-1", Name: "mug", Price: 10, Stock: 5})
	bad := seedProduct(t, s, models.Product{SellerID: "user-1", Name: "hat", Price: 7, Stock: 1})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	result, err := engine.Settle(context.Background(),
		[]Line{
			{ProductID: good.ID, Quantity: 1},
			{ProductID: bad.ID, Quantity: 2},
		},
		testBuyer(),
		PaymentRef{},
	)
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, result.Failures, 1)
	require.Equal(t, 1, result.Failures[0].Index)

	gotGood, err := models.ProductByID(s, good.ID)
	require.NoError(t, err)
	require.Equal(t, 5, gotGood.Stock)

	n, err := s.Count(models.TableOrders)
	require.NoError(t, err)
	require.Zero(t, n)
}

// Two lines of the same cart claim from the same stock pool.
func TestSettleCumulativeClaims(t *testing.T) {
	s := testStore(t)
	product := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "mug", Price: 10, Stock: 5, Colors: []string{"red", "blue"},
	})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	_, err := engine.Settle(context.Background(),
		[]Line{
			{ProductID: product.ID, Color: "red", Quantity: 3},
			{ProductID: product.ID, Color: "blue", Quantity: 3},
		},
		testBuyer(),
		PaymentRef{},
	)
	require.ErrorIs(t, err, ErrRejected)

	got, err := models.ProductByID(s, product.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Stock)
}

func TestSettleValidation(t *testing.T) {
	s := testStore(t)
	hidden := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "mug", Price: 10, Stock: 5,
		Status: models.ProductPending, SubscriptionStatus: models.SubPending,
	})
	colored := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "hat", Price: 7, Stock: 5, Colors: []string{"red"},
	})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	_, err := engine.Settle(context.Background(), nil, testBuyer(), PaymentRef{})
	require.ErrorIs(t, err, ErrEmptyCart)

	result, err := engine.Settle(context.Background(),
		[]Line{
			{ProductID: "product-missing", Quantity: 1},
			{ProductID: hidden.ID, Quantity: 1},
			{ProductID: colored.ID, Color: "green", Quantity: 1},
			{ProductID: colored.ID, Quantity: 0},
		},
		testBuyer(),
		PaymentRef{},
	)
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, result.Failures, 4)
	require.Equal(t, "product not found", result.Failures[0].Reason)
	require.Equal(t, "product not available", result.Failures[1].Reason)
	require.Contains(t, result.Failures[2].Reason, "not offered")
	require.Equal(t, "quantity must be positive", result.Failures[3].Reason)
}

// A captured payment whose settlement fails leaves a reconciliation marker.
func TestSettleRecordsPaymentFault(t *testing.T) {
	s := testStore(t)
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	_, err := engine.Settle(context.Background(),
		[]Line{{ProductID: "product-missing", Quantity: 1}},
		testBuyer(),
		PaymentRef{IntentID: "pi_lost", Status: "succeeded"},
	)
	require.ErrorIs(t, err, ErrRejected)

	faults, err := s.GetAll(models.TablePaymentFaults)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	require.Equal(t, "pi_lost", faults[0]["payment_ref"])
	require.Equal(t, "ada@example.com", faults[0]["customer_email"])
}

func TestSettleNoFaultWhenNotCaptured(t *testing.T) {
	s := testStore(t)
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	_, err := engine.Settle(context.Background(),
		[]Line{{ProductID: "product-missing", Quantity: 1}},
		testBuyer(),
		PaymentRef{IntentID: "pi_try", Status: "requires_payment_method"},
	)
	require.ErrorIs(t, err, ErrRejected)

	n, err := s.Count(models.TablePaymentFaults)
	require.NoError(t, err)
	require.Zero(t, n)
}

// Concurrent checkouts against the same product never sell more than the
// stock on hand.
func TestSettleConcurrentNoOversell(t *testing.T) {
	s := testStore(t)
	product := seedProduct(t, s, models.Product{
		SellerID: "user-1", Name: "mug", Price: 10, Stock: 7,
	})
	engine := NewEngine(s, notify.Noop{}, 0.15, nil)

	const buyers = 20
	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Settle(context.Background(),
				[]Line{{ProductID: product.ID, Quantity: 1}},
				testBuyer(),
				PaymentRef{},
			)
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrRejected)
		}
	}
	require.Equal(t, 7, succeeded)

	got, err := models.ProductByID(s, product.ID)
	require.NoError(t, err)
	require.Zero(t, got.Stock)

	n, err := s.Count(models.TableOrders)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}
