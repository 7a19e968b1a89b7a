package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the database. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[uuid.UUID]domain.Product
	carts    map[uuid.UUID]domain.CartItem
	orders   map[uuid.UUID]domain.Order
	items    map[uuid.UUID][]domain.OrderItem
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]domain.Product),
		carts:    make(map[uuid.UUID]domain.CartItem),
		orders:   make(map[uuid.UUID]domain.Order),
		items:    make(map[uuid.UUID][]domain.OrderItem),
	}
}

func (m *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Products: &memProducts{m},
		Stock:    &memStock{m},
		Carts:    &memCarts{m},
		Orders:   &memOrders{m},
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, m.repos()); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStore) snapshot() *memStore {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := newMemStore()
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.carts {
		s.carts[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.items {
		s.items[k] = append([]domain.OrderItem(nil), v...)
	}
	return s
}

func (m *memStore) restore(s *memStore) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products = s.products
	m.carts = s.carts
	m.orders = s.orders
	m.items = s.items
}

// addProduct seeds a product and returns its id
func (m *memStore) addProduct(name string, price string, stock int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.products[id] = domain.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	return id
}

func (m *memStore) stockOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) setPrice(id uuid.UUID, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Price = decimal.RequireFromString(price)
	m.products[id] = p
}

// sell removes units outside any transaction, as a checkout committed by
// another connection would
func (m *memStore) sell(id uuid.UUID, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Stock -= quantity
	m.products[id] = p
}

func (m *memStore) cartLines(userID uuid.UUID) []domain.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lines []domain.CartItem
	for _, item := range m.carts {
		if item.UserID == userID {
			lines = append(lines, item)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID.String() < lines[j].ProductID.String() })
	return lines
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memProducts struct{ m *memStore }

func (r *memProducts) Create(ctx context.Context, product *domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.products[product.ID] = *product
	return nil
}

func (r *memProducts) Update(ctx context.Context, product *domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	r.m.products[product.ID] = *product
	return nil
}

func (r *memProducts) UpdateDetails(ctx context.Context, product *domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.products[product.ID]
	if !ok {
		return repository.ErrProductNotFound
	}
	product.Stock = existing.Stock
	r.m.products[product.ID] = *product
	return nil
}

func (r *memProducts) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	for _, items := range r.m.items {
		for _, item := range items {
			if item.ProductID == id {
				return repository.ErrProductInUse
			}
		}
	}
	delete(r.m.products, id)
	for k, item := range r.m.carts {
		if item.ProductID == id {
			delete(r.m.carts, k)
		}
	}
	return nil
}

func (r *memProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r *memProducts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r *memProducts) List(ctx context.Context) ([]*domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	products := []*domain.Product{}
	for _, p := range r.m.products {
		p := p
		products = append(products, &p)
	}
	return products, nil
}

type memStock struct{ m *memStore }

func (l *memStock) Stock(ctx context.Context, productID uuid.UUID) (int, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	p, ok := l.m.products[productID]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	return p.Stock, nil
}

func (l *memStock) HasEnoughStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error) {
	stock, err := l.Stock(ctx, productID)
	if err != nil {
		return false, err
	}
	return stock >= quantity, nil
}

func (l *memStock) Available(ctx context.Context, productID uuid.UUID, now time.Time) (int, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	p, ok := l.m.products[productID]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	available := p.Stock
	for _, item := range l.m.carts {
		if item.ProductID == productID && item.ExpiresAt.After(now) {
			available -= item.Quantity
		}
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (l *memStock) Decrement(ctx context.Context, productID uuid.UUID, quantity int) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	p, ok := l.m.products[productID]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.Stock < quantity {
		return &domain.InsufficientStockError{ProductID: productID, ProductName: p.Name, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	l.m.products[productID] = p
	return nil
}

type memCarts struct{ m *memStore }

func (r *memCarts) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	items := []*domain.CartItem{}
	for id, item := range r.m.carts {
		if item.UserID != userID {
			continue
		}
		if !item.ExpiresAt.After(now) {
			delete(r.m.carts, id)
			continue
		}
		item := item
		product := r.m.products[item.ProductID]
		item.Product = &product
		items = append(items, &item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *memCarts) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.CartItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.carts[id]
	if !ok || item.UserID != userID {
		return nil, repository.ErrCartItemNotFound
	}
	return &item, nil
}

func (r *memCarts) Upsert(ctx context.Context, item *domain.CartItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.products[item.ProductID]; !ok {
		return repository.ErrProductNotFound
	}
	for id, existing := range r.m.carts {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity = item.Quantity
			existing.ExpiresAt = item.ExpiresAt
			existing.UpdatedAt = item.UpdatedAt
			r.m.carts[id] = existing
			item.ID = existing.ID
			item.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	stored := *item
	stored.Product = nil
	r.m.carts[item.ID] = stored
	return nil
}

func (r *memCarts) UpdateQuantity(ctx context.Context, item *domain.CartItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.carts[item.ID]
	if !ok || existing.UserID != item.UserID {
		return repository.ErrCartItemNotFound
	}
	existing.Quantity = item.Quantity
	existing.ExpiresAt = item.ExpiresAt
	r.m.carts[item.ID] = existing
	return nil
}

func (r *memCarts) Delete(ctx context.Context, userID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.carts[id]
	if !ok || item.UserID != userID {
		return repository.ErrCartItemNotFound
	}
	delete(r.m.carts, id)
	return nil
}

func (r *memCarts) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, item := range r.m.carts {
		if item.UserID == userID {
			delete(r.m.carts, id)
			n++
		}
	}
	return n, nil
}

func (r *memCarts) TakeActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	items := []*domain.CartItem{}
	for id, item := range r.m.carts {
		if item.UserID != userID {
			continue
		}
		delete(r.m.carts, id)
		if item.ExpiresAt.After(now) {
			item := item
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *memCarts) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, item := range r.m.carts {
		if !item.ExpiresAt.After(now) {
			delete(r.m.carts, id)
			n++
		}
	}
	return n, nil
}

type memOrders struct{ m *memStore }

func (r *memOrders) Create(ctx context.Context, order *domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if order.PaymentIntentID != "" {
		for _, existing := range r.m.orders {
			if existing.PaymentIntentID == order.PaymentIntentID {
				return repository.ErrPaymentIntentUsed
			}
		}
	}
	stored := *order
	stored.Items = nil
	r.m.orders[order.ID] = stored
	return nil
}

func (r *memOrders) AddItem(ctx context.Context, item *domain.OrderItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.items[item.OrderID] = append(r.m.items[item.OrderID], *item)
	return nil
}

func (r *memOrders) Finalize(ctx context.Context, orderID uuid.UUID, total decimal.Decimal, status domain.OrderStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Total = total
	order.Status = status
	r.m.orders[orderID] = order
	return nil
}

func (r *memOrders) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[id]
	if !ok || order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	for _, item := range r.m.items[id] {
		item := item
		order.Items = append(order.Items, &item)
	}
	return &order, nil
}

func (r *memOrders) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	orders := []*domain.Order{}
	for _, order := range r.m.orders {
		if order.UserID == userID {
			order := order
			orders = append(orders, &order)
		}
	}
	return orders, nil
}

// mockGateway records requests and answers with canned intents
type mockGateway struct {
	mu       sync.Mutex
	created  []payment.CreateIntentRequest
	intents  map[string]*payment.Intent
	createFn func(req payment.CreateIntentRequest) (*payment.Intent, error)
}

func newMockGateway() *mockGateway {
	return &mockGateway{intents: make(map[string]*payment.Intent)}
}

func (g *mockGateway) CreatePaymentIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createFn != nil {
		return g.createFn(req)
	}
	return &payment.Intent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       payment.IntentRequiresPaymentMethod,
		Metadata:     req.Metadata,
	}, nil
}

func (g *mockGateway) GetPaymentIntent(ctx context.Context, id string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, &payment.GatewayError{Op: "get_payment_intent", Message: "No such payment_intent: " + id}
	}
	return intent, nil
}

// recordingPublisher collects published orders
type recordingPublisher struct {
	mu     sync.Mutex
	orders []*domain.Order
	err    error
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}
