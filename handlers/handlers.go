package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"coopStore/entities"
	"coopStore/models"
	"coopStore/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	cartCookieName = "cartSessionId"
	cartCookieTTL  = 30 * 24 * time.Hour
	cartKeyPrefix  = "cart:"
)

// CartFactory returns the cart store for one storage key.
type CartFactory func(key string) *services.CartService

type Handler struct {
	carts  CartFactory
	logger *zap.Logger
}

type HandlerParams struct {
	Carts  CartFactory
	Logger *zap.Logger
}

func NewHandler(params HandlerParams) *Handler {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		carts:  params.Carts,
		logger: logger,
	}
}

func NewRouter(ha *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(ha.ErrorHandleMiddleware)

	router.HandleFunc("/cart", ha.GetCart).Methods("GET")
	router.HandleFunc("/cart", ha.ClearCart).Methods("DELETE")
	router.HandleFunc("/cart/count", ha.GetCartCount).Methods("GET")
	router.HandleFunc("/cart/validate", ha.ValidateCart).Methods("GET")
	router.HandleFunc("/cart/items", ha.AddToCart).Methods("POST")
	router.HandleFunc("/cart/items/{id}", ha.UpdateQuantity).Methods("PUT")
	router.HandleFunc("/cart/items/{id}", ha.DeleteFromCart).Methods("DELETE")
	router.HandleFunc("/cart/discount", ha.ApplyDiscount).Methods("POST")
	router.HandleFunc("/cart/discount", ha.ClearDiscount).Methods("DELETE")
	router.HandleFunc("/cart/membership", ha.SetMembership).Methods("PUT")
	router.HandleFunc("/cart/checkout", ha.Checkout).Methods("POST")
	return router
}

// cartSession returns the session id from the cookie. With create set, a missing or
// malformed cookie is replaced by a fresh session.
func (h *Handler) cartSession(w http.ResponseWriter, r *http.Request, create bool) (cartSessionId string, ok bool) {
	c, err := r.Cookie(cartCookieName)
	if err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value, true
		}
		h.logger.Info("cartSession: malformed session cookie", zap.String("value", c.Value))
	} else if !errors.Is(err, http.ErrNoCookie) {
		h.logger.Error("cartSession: cookie err", zap.Error(err))
	}
	if !create {
		return "", false
	}
	cartSessionId = uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cartCookieName,
		Value:    cartSessionId,
		Path:     "/",
		Expires:  time.Now().Add(cartCookieTTL),
		HttpOnly: true,
	})
	return cartSessionId, true
}

func (h *Handler) cartFor(cartSessionId string) *services.CartService {
	return h.carts(cartKeyPrefix + cartSessionId)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Info("Unmarshal err", zap.String("path", r.URL.Path), zap.Error(err))
		WriteErrorResponse(w, models.ErrBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		h.logger.Error("Marshal err", zap.Error(err))
		WriteErrorResponse(w, models.ErrServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonData)
}

func (h *Handler) writeResult(w http.ResponseWriter, err error) {
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}
	h.writeJSON(w, entities.Result{Success: true})
}

// cart

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		cart := entities.NewCart()
		cart.Recalculate(services.DefaultTaxRate)
		h.writeJSON(w, cart.Display())
		return
	}
	h.writeJSON(w, h.cartFor(cartSessionId).GetCartState().Display())
}

func (h *Handler) GetCartCount(w http.ResponseWriter, r *http.Request) {
	var count int
	if cartSessionId, ok := h.cartSession(w, r, false); ok {
		count = h.cartFor(cartSessionId).GetCartItemCount()
	}
	h.writeJSON(w, map[string]int{"count": count})
}

func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		h.writeJSON(w, entities.CheckoutStatus{Message: "Your cart is empty"})
		return
	}
	h.writeJSON(w, h.cartFor(cartSessionId).IsCartValidForCheckout())
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	req := entities.CartRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	cartSessionId, _ := h.cartSession(w, r, true)
	err := h.cartFor(cartSessionId).AddToCart(r.Context(), req.ProductId, req.VariantId, req.Quantity)
	h.writeResult(w, err)
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	req := entities.QuantityRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		WriteErrorResponse(w, models.ErrItemNotFound)
		return
	}
	h.writeResult(w, h.cartFor(cartSessionId).UpdateQuantity(mux.Vars(r)["id"], req.Quantity))
}

func (h *Handler) DeleteFromCart(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		h.writeResult(w, nil)
		return
	}
	h.writeResult(w, h.cartFor(cartSessionId).RemoveFromCart(mux.Vars(r)["id"]))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		h.writeResult(w, nil)
		return
	}
	h.writeResult(w, h.cartFor(cartSessionId).ClearCart())
}

func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	req := entities.DiscountRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	cartSessionId, _ := h.cartSession(w, r, true)
	h.writeResult(w, h.cartFor(cartSessionId).ApplyDiscount(r.Context(), req.Code))
}

func (h *Handler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		h.writeResult(w, nil)
		return
	}
	h.writeResult(w, h.cartFor(cartSessionId).ClearDiscount())
}

func (h *Handler) SetMembership(w http.ResponseWriter, r *http.Request) {
	req := entities.MembershipRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	cartSessionId, _ := h.cartSession(w, r, true)
	h.writeResult(w, h.cartFor(cartSessionId).SetCoOpMembership(req.IsCoOpMember))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartSessionId, ok := h.cartSession(w, r, false)
	if !ok {
		WriteErrorResponse(w, fmt.Errorf("%w: Your cart is empty", models.ErrNotAllowed))
		return
	}
	receipt, err := h.cartFor(cartSessionId).Checkout(r.Context())
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}
	h.writeJSON(w, receipt)
}

// middleware

func (h *Handler) ErrorHandleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic occured",
					zap.Any("panic", rec), zap.String("path", r.URL.Path), zap.ByteString("stacktrace", debug.Stack()))
				http.Error(w, "something went wrong, contact with service administration", http.StatusBadGateway)
			}
		}()
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("request served",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrBadRequest), errors.Is(err, models.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrItemNotFound), errors.Is(err, models.ErrProductUnavailable),
		errors.Is(err, models.ErrNotFoundError):
		return http.StatusNotFound
	case errors.Is(err, models.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidCoupon), errors.Is(err, models.ErrCouponExpired),
		errors.Is(err, models.ErrMinPurchaseNotMet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotAllowed):
		return http.StatusNotAcceptable
	case errors.Is(err, models.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse answers with {"success": false, "message": ...}.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatus(err))
	json.NewEncoder(w).Encode(entities.Result{Message: err.Error()})
}
