package transport

import (
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddToCartRequest represents the add-to-cart payload
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateCartRequest represents the quantity update payload
type UpdateCartRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// CartHandler handles HTTP requests for the cart
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

// RegisterRoutes registers all cart routes behind the given middleware
func (h *CartHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(protect...)
		r.Get("/", h.List)
		r.Post("/", h.Add)
		r.Post("/clear", h.Clear)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Remove)
	})
}

// List returns the caller's active cart lines. The latest line expiry is
// sent in a header so clients can show a single countdown.
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	items, err := h.cartService.ListActive(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	if expiresAt := service.CartExpiresAt(items); !expiresAt.IsZero() {
		w.Header().Set(middleware.CartExpiresHeader, expiresAt.UTC().Format(time.RFC3339))
	}
	middleware.RespondWithJSON(w, http.StatusOK, items)
}

// Add reserves a product, replacing the quantity of an existing line
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req AddToCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add to cart validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	item, err := h.cartService.AddOrUpdate(r.Context(), userID, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Product added to cart",
		"item":    item,
	})
}

// Update changes the quantity of one line and renews its reservation
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Cart update validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	item, err := h.cartService.UpdateQuantity(r.Context(), userID, itemID, req.Quantity)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Cart updated",
		"cartItem": item,
	})
}

// Remove deletes one line
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.cartService.Remove(r.Context(), userID, itemID); err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})
}

// Clear deletes every line in the caller's cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.cartService.Clear(r.Context(), userID); err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}
