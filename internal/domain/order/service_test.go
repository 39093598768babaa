package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/product"
	"github.com/xenking/shopkart/internal/domain/settings"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
	subtotal decimal.Decimal
	called   bool
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, subtotal decimal.Decimal) (*coupon.Discount, error) {
	m.called = true
	m.subtotal = subtotal
	return m.discount, m.err
}

type mockOrderRepo struct {
	mu        sync.Mutex
	lastOrder *Order
	byID      map[string]*Order
	err       error
	updateErr error
	updates   int
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, _ ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrStatusConflict
	}
	m.updates++
	o.Status = to
	cp := *o
	return &cp, nil
}

type mockSettings struct {
	st  settings.Settings
	err error
}

func (m *mockSettings) Get(context.Context) (*settings.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	st := m.st
	return &st, nil
}

type mockPublisher struct {
	placed  []*Order
	changed []Status
	err     error
}

func (m *mockPublisher) OrderPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o)
	return m.err
}

func (m *mockPublisher) StatusChanged(_ context.Context, o *Order, from Status) error {
	m.changed = append(m.changed, from, o.Status)
	return m.err
}

// --- Helpers ---

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestProduct(id, title string, price decimal.Decimal) product.Product {
	return product.Product{
		ID:       id,
		Title:    title,
		Price:    price,
		Category: "test",
		ImageURL: "https://cdn.example.com/" + id + ".jpg",
		Stock:    100,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

var testCustomer = Customer{
	Name:    "Asha Rao",
	Email:   "asha@example.com",
	Address: "12 MG Road",
	City:    "Bengaluru",
	Zip:     "560001",
}

type serviceDeps struct {
	products  *mockProductRepo
	coupons   *mockCouponValidator
	orders    *mockOrderRepo
	settings  *mockSettings
	publisher *mockPublisher
}

func newTestService(d serviceDeps) *Service {
	if d.products == nil {
		d.products = newProductRepo()
	}
	if d.coupons == nil {
		d.coupons = &mockCouponValidator{}
	}
	if d.orders == nil {
		d.orders = &mockOrderRepo{}
	}
	if d.settings == nil {
		d.settings = &mockSettings{st: settings.Defaults()}
	}
	if d.publisher == nil {
		d.publisher = &mockPublisher{}
	}
	svc := NewService(d.products, d.coupons, d.orders, d.settings, settings.DefaultShipping(), d.publisher)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func cartOf(items ...CartItem) *Cart {
	c := &Cart{}
	for _, it := range items {
		_ = c.Add(it)
	}
	return c
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := newTestService(serviceDeps{})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, &Cart{})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.PlaceOrder(context.Background(), testCustomer, nil)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidCustomer(t *testing.T) {
	svc := newTestService(serviceDeps{})
	cart := cartOf(CartItem{ProductID: "p1", Quantity: 1})

	for name, mutate := range map[string]func(c *Customer){
		"no name":     func(c *Customer) { c.Name = "  " },
		"bad email":   func(c *Customer) { c.Email = "asha@" },
		"no zip code": func(c *Customer) { c.Zip = "" },
	} {
		t.Run(name, func(t *testing.T) {
			c := testCustomer
			mutate(&c)
			_, err := svc.PlaceOrder(context.Background(), c, cart)
			require.ErrorIs(t, err, ErrInvalidCustomer)
		})
	}
}

func TestPlaceOrder_Maintenance(t *testing.T) {
	st := settings.Defaults()
	st.MaintenanceMode = true
	p1 := newTestProduct("p1", "Widget", dec("10"))
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products: newProductRepo(p1),
		orders:   orders,
		settings: &mockSettings{st: st},
	})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, cartOf(CartItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, ErrMaintenance)
	assert.Nil(t, orders.lastOrder)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10"))
	svc := newTestService(serviceDeps{products: newProductRepo(p1)})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, &Cart{
		Items: []CartItem{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := newTestService(serviceDeps{})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, cartOf(CartItem{ProductID: "missing", Quantity: 1}))

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_OutOfStock(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10"))
	p1.Stock = 2
	svc := newTestService(serviceDeps{products: newProductRepo(p1)})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, cartOf(CartItem{ProductID: "p1", Quantity: 3}))

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 2, oos.Available)
}

func TestPlaceOrder_NoCoupon(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10.00"))
	p2 := newTestProduct("p2", "Gadget", dec("20.00"))
	orders := &mockOrderRepo{}
	pub := &mockPublisher{}
	cv := &mockCouponValidator{}
	svc := newTestService(serviceDeps{
		products:  newProductRepo(p1, p2),
		coupons:   cv,
		orders:    orders,
		publisher: pub,
	})
	cart := cartOf(
		CartItem{ProductID: "p1", Quantity: 2},
		CartItem{ProductID: "p2", Quantity: 1},
	)

	o, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.NoError(t, err)
	assert.False(t, cv.called)
	assert.True(t, dec("40").Equal(o.Subtotal))
	assert.True(t, dec("15").Equal(o.Shipping), "shipping charged at or below 100")
	assert.True(t, dec("55").Equal(o.Total))
	assert.True(t, decimal.Zero.Equal(o.Discount))
	assert.Equal(t, StatusPending, o.Status)
	assert.Empty(t, o.CouponCode)
	assert.Same(t, o, orders.lastOrder)
	assert.Len(t, pub.placed, 1)
	assert.Empty(t, cart.Items, "cart is cleared after a successful order")
}

func TestPlaceOrder_SnapshotsCatalogPrice(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("120.00"))
	svc := newTestService(serviceDeps{products: newProductRepo(p1)})
	cart := cartOf(CartItem{ProductID: "p1", Title: "Widget", Price: dec("99.00"), Quantity: 1})

	o, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, dec("120").Equal(o.Items[0].PriceAtPurchase))
	assert.True(t, decimal.Zero.Equal(o.Shipping), "free shipping above 100")
	assert.True(t, dec("120").Equal(o.Total))
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	p1 := newTestProduct("p1", "Headphones", dec("600.00"))
	cv := &mockCouponValidator{
		discount: &coupon.Discount{
			Amount: dec("200"),
			Code:   "WELCOME20",
			Type:   coupon.DiscountPercent,
		},
	}
	svc := newTestService(serviceDeps{products: newProductRepo(p1), coupons: cv})
	cart := cartOf(CartItem{ProductID: "p1", Quantity: 2})
	cart.Coupon = &coupon.Discount{Code: "WELCOME20", Amount: dec("200")}

	o, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.NoError(t, err)
	assert.True(t, dec("1200").Equal(cv.subtotal), "coupon validated against catalog subtotal")
	assert.True(t, dec("200").Equal(o.Discount))
	assert.True(t, dec("1000").Equal(o.Total))
	assert.Equal(t, "WELCOME20", o.CouponCode)
	assert.Equal(t, "-₹200.00", settings.FormatMoney(o.Discount.Neg(), "INR"))
}

func TestPlaceOrder_RejectedCouponKeepsCart(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("300.00"))
	rejection := &coupon.Rejection{Reason: coupon.ErrBelowMinimum, Code: "BIG500", Message: "This coupon requires a minimum order of 500"}
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products: newProductRepo(p1),
		coupons:  &mockCouponValidator{err: rejection},
		orders:   orders,
	})
	cart := cartOf(CartItem{ProductID: "p1", Quantity: 1})
	applied := &coupon.Discount{Code: "BIG500", Amount: dec("50")}
	cart.Coupon = applied

	_, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.ErrorIs(t, err, coupon.ErrBelowMinimum)
	assert.True(t, coupon.IsRejection(err))
	assert.Contains(t, err.Error(), "500")
	assert.Nil(t, orders.lastOrder)
	assert.Len(t, cart.Items, 1)
	assert.Same(t, applied, cart.Coupon)
}

func TestPlaceOrder_DiscountFlooredAtZero(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10.00"))
	cv := &mockCouponValidator{
		discount: &coupon.Discount{Amount: dec("999.00"), Code: "HUGE"},
	}
	svc := newTestService(serviceDeps{products: newProductRepo(p1), coupons: cv})
	cart := cartOf(CartItem{ProductID: "p1", Quantity: 1})
	cart.Coupon = &coupon.Discount{Code: "HUGE"}

	o, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(o.Total))
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10"))
	svc := newTestService(serviceDeps{
		products: newProductRepo(p1),
		orders:   &mockOrderRepo{err: errors.New("db write failed")},
	})
	cart := cartOf(CartItem{ProductID: "p1", Quantity: 1})

	_, err := svc.PlaceOrder(context.Background(), testCustomer, cart)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Len(t, cart.Items, 1)
}

func TestPlaceOrder_PublishFailureIsNotFatal(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", dec("10"))
	svc := newTestService(serviceDeps{
		products:  newProductRepo(p1),
		publisher: &mockPublisher{err: errors.New("broker down")},
	})

	o, err := svc.PlaceOrder(context.Background(), testCustomer, cartOf(CartItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}
