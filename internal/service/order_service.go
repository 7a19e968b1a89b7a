package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CheckoutLine is one product and quantity to buy
type CheckoutLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutRequest selects what to buy. With no Products the user's active
// cart is checked out and emptied; otherwise the listed products are bought
// and the cart is left alone.
type CheckoutRequest struct {
	Products        []CheckoutLine
	PaymentIntentID string
}

// OrderService turns reservations into orders
type OrderService interface {
	Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
}

type orderService struct {
	tx        repository.Transactor
	orders    repository.OrderRepository
	gateway   payment.Gateway
	publisher events.OrderPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	tx repository.Transactor,
	orders repository.OrderRepository,
	gateway payment.Gateway,
	publisher events.OrderPublisher,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		tx:        tx,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checkout creates an order atomically: every line is checked and
// decremented, the order and its lines are written with the prices read
// under lock, and the cart is emptied, or nothing happens at all.
func (s *orderService) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID.String()))

	start := time.Now()
	defer func() {
		metrics.CheckoutLatency.Observe(time.Since(start).Seconds())
		metrics.CheckoutsTotal.WithLabelValues(checkoutResult(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	explicit := len(req.Products) > 0
	lines, err := mergeLines(req.Products)
	if err != nil {
		return nil, err
	}

	var intent *payment.Intent
	if req.PaymentIntentID != "" {
		intent, err = s.gateway.GetPaymentIntent(ctx, req.PaymentIntentID)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()

		// Claiming the cart deletes it inside this transaction, so a second
		// checkout of the same cart finds it empty once this one commits.
		if !explicit {
			items, err := repos.Carts.TakeActive(ctx, userID, now)
			if err != nil {
				return err
			}
			lines = cartLines(items)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		// Lock rows in a fixed order so concurrent checkouts sharing
		// products wait on each other instead of deadlocking.
		sort.Slice(lines, func(i, j int) bool {
			return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
		})

		products := make(map[uuid.UUID]*domain.Product, len(lines))
		for _, line := range lines {
			product, err := repos.Products.FindByIDForUpdate(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
				}
				return err
			}
			if product.Stock < line.Quantity {
				return &domain.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   line.Quantity,
					Available:   product.Stock,
				}
			}
			products[product.ID] = product
		}

		order = &domain.Order{
			ID:              uuid.New(),
			UserID:          userID,
			Status:          domain.OrderStatusPending,
			Total:           decimal.Zero,
			PaymentIntentID: req.PaymentIntentID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range lines {
			product := products[line.ProductID]
			if err := repos.Stock.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}

			item := &domain.OrderItem{
				ID:        uuid.New(),
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     product.Price,
			}
			if err := repos.Orders.AddItem(ctx, item); err != nil {
				return err
			}

			order.Items = append(order.Items, item)
			total = total.Add(item.Subtotal())
		}

		status := domain.OrderStatusPending
		if intent != nil {
			if err := confirmPayment(intent, userID, total); err != nil {
				return err
			}
			status = domain.OrderStatusPaid
		}

		if err := repos.Orders.Finalize(ctx, order.ID, total, status); err != nil {
			return err
		}
		order.Total = total
		order.Status = status

		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.total", order.Total.StringFixed(2)),
	)

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("status", string(order.Status)),
		zap.Int("lines", len(order.Items)),
	)

	// The order is committed; a lost event must not fail the request.
	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, userID, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// mergeLines validates an explicit product list and folds repeated
// products into one line.
func mergeLines(requested []CheckoutLine) ([]CheckoutLine, error) {
	merged := make([]CheckoutLine, 0, len(requested))
	index := make(map[uuid.UUID]int, len(requested))

	for _, line := range requested {
		if line.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	return merged, nil
}

func cartLines(items []*domain.CartItem) []CheckoutLine {
	lines := make([]CheckoutLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, CheckoutLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// confirmPayment accepts an intent only if the provider captured exactly
// the order total and the intent was opened for this user.
func confirmPayment(intent *payment.Intent, userID uuid.UUID, total decimal.Decimal) error {
	if intent.Status != payment.IntentSucceeded {
		return fmt.Errorf("%w: intent %s is %s", ErrPaymentNotConfirmed, intent.ID, intent.Status)
	}
	if intent.Amount != payment.ToMinorUnits(total) {
		return fmt.Errorf("%w: intent %s amount %d does not match order total %s",
			ErrPaymentNotConfirmed, intent.ID, intent.Amount, total.StringFixed(2))
	}
	owner, ok := intent.Metadata["user_id"]
	if !ok || owner == "" {
		return fmt.Errorf("%w: intent %s has no owner", ErrPaymentNotConfirmed, intent.ID)
	}
	if owner != userID.String() {
		return fmt.Errorf("%w: intent %s belongs to another user", ErrPaymentNotConfirmed, intent.ID)
	}
	return nil
}

func checkoutResult(err error) string {
	var stockErr *domain.InsufficientStockError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrPaymentNotConfirmed), errors.Is(err, repository.ErrPaymentIntentUsed):
		return "payment_rejected"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrUnknownProduct):
		return "invalid"
	default:
		return "error"
	}
}
