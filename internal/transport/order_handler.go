package transport

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderLineRequest is one explicitly requested product
type OrderLineRequest struct {
	ID       string `json:"id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderRequest represents the checkout payload. Every field is
// optional: an empty body checks out the active cart.
type CreateOrderRequest struct {
	Products        []OrderLineRequest `json:"products" validate:"omitempty,dive"`
	PaymentIntentID string             `json:"payment_intent_id" validate:"omitempty,max=255"`
}

// CreateOrderResponse represents the checkout result
type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes behind the given middleware
func (h *OrderHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(protect...)
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

// Create checks out the cart, or an explicit product list, into an order
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("Order validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	checkout := service.CheckoutRequest{PaymentIntentID: req.PaymentIntentID}
	for _, line := range req.Products {
		checkout.Products = append(checkout.Products, service.CheckoutLine{
			ProductID: uuid.MustParse(line.ID),
			Quantity:  line.Quantity,
		})
	}

	order, err := h.orderService.Checkout(r.Context(), userID, checkout)
	if err != nil {
		h.logger.Info("Checkout rejected", zap.String("user_id", userID.String()), zap.Error(err))
		respondServiceError(w, h.logger, err, http.StatusConflict)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID: order.ID.String(),
		Total:   order.Total.StringFixed(2),
		Status:  string(order.Status),
	})
}

// List returns the caller's orders, newest first
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.ListOrders(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusConflict)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// Get returns one of the caller's orders with its lines
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusConflict)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}
