package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/cart"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

const maxBodyBytes = 1 << 20

// CartService is the cart surface the handlers drive.
type CartService interface {
	View(ctx context.Context, customerID string) (*cart.View, error)
	AddItem(ctx context.Context, customerID, productID string, quantity int) (*cart.View, error)
	SetQuantity(ctx context.Context, customerID, productID string, quantity int) (*cart.View, error)
	DecrementItem(ctx context.Context, customerID, productID string) (*cart.View, error)
	RemoveLine(ctx context.Context, customerID, productID string) (*cart.View, error)
}

// OrderService is the checkout and order lifecycle surface.
type OrderService interface {
	CreateOrder(ctx context.Context, sess session.Session, address domain.Address, idempotencyKey string) (*app.CheckoutResult, error)
	SubmitPayment(ctx context.Context, sess session.Session, orderID, ref string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, ref, source string) (*domain.Order, error)
	HandleNotification(ctx context.Context, eventID, ref string) error
	PayAgain(ctx context.Context, sess session.Session, orderID string) (*app.CheckoutResult, error)
	Cancel(ctx context.Context, sess session.Session, orderID, reason string) (*domain.Order, error)
	GetOrder(ctx context.Context, sess session.Session, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, sess session.Session, customerID string) ([]*domain.Order, error)
	History(ctx context.Context, sess session.Session, orderID string) ([]domain.StatusTransition, error)
	CheckoutLog(ctx context.Context, sess session.Session, orderID string) ([]*sagalog.SagaLog, error)
}

// Redirects are the storefront pages a customer returns to from the hosted
// payment page.
type Redirects struct {
	ConfirmationURL string
	CheckoutURL     string
}

type Handler struct {
	carts     CartService
	orders    OrderService
	redirects Redirects
}

func NewHandler(carts CartService, orders OrderService, redirects Redirects) *Handler {
	return &Handler{carts: carts, orders: orders, redirects: redirects}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	v, err := h.carts.View(r.Context(), sess.CustomerID)
	h.writeCart(w, r, v, err)
}

func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req AddLineRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	v, err := h.carts.AddItem(r.Context(), sess.CustomerID, req.ProductID, req.Quantity)
	h.writeCart(w, r, v, err)
}

func (h *Handler) SetCartLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	v, err := h.carts.SetQuantity(r.Context(), sess.CustomerID, chi.URLParam(r, "productID"), *req.Quantity)
	h.writeCart(w, r, v, err)
}

// DecrementCartLine removes one unit, dropping the line with its last unit.
func (h *Handler) DecrementCartLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	v, err := h.carts.DecrementItem(r.Context(), sess.CustomerID, chi.URLParam(r, "productID"))
	h.writeCart(w, r, v, err)
}

func (h *Handler) DeleteCartLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	v, err := h.carts.RemoveLine(r.Context(), sess.CustomerID, chi.URLParam(r, "productID"))
	h.writeCart(w, r, v, err)
}

// Checkout builds an order from the caller's cart. Retrying with the same
// Idempotency-Key header returns the order created the first time.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	var address domain.Address
	if req.DeliveryAddress != nil {
		address = req.DeliveryAddress.toDomain()
	}
	idempotencyKey := r.Header.Get(constants.HTTPHeaderIdempotencyKey)

	slog.InfoContext(r.Context(), "checkout requested", "customer_id", sess.CustomerID, "idempotency_key", idempotencyKey)

	res, err := h.orders.CreateOrder(r.Context(), sess, address, idempotencyKey)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResponse{
		Order:        mapOrderToResponse(res.Order),
		ClientSecret: res.ClientSecret,
		Message:      "order created, awaiting payment",
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), sess, r.URL.Query().Get("customer_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = mapOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), sess, chi.URLParam(r, "id"))
	h.writeOrder(w, r, order, err)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	history, err := h.orders.History(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapHistory(history))
}

func (h *Handler) OrderCheckoutLog(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	entries, err := h.orders.CheckoutLog(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCheckoutLog(entries))
}

func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req SubmitPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	order, err := h.orders.SubmitPayment(r.Context(), sess, chi.URLParam(r, "id"), req.PaymentReference)
	h.writeOrder(w, r, order, err)
}

func (h *Handler) PayAgain(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	res, err := h.orders.PayAgain(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResponse{Order: mapOrderToResponse(res.Order), ClientSecret: res.ClientSecret})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	order, err := h.orders.Cancel(r.Context(), sess, chi.URLParam(r, "id"), req.Reason)
	h.writeOrder(w, r, order, err)
}

// PaymentReturn is where the hosted payment page sends the customer back.
// Accepted payments land on the confirmation page, anything else back on
// checkout with an error flag.
func (h *Handler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("payment_reference")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_reference is required")
		return
	}

	order, err := h.orders.ConfirmPayment(r.Context(), ref, app.SourceRedirect)
	if err != nil {
		slog.WarnContext(r.Context(), "payment return not confirmed", "payment_reference", ref, "error", err)
	}
	if err == nil && (order.Status == domain.StatusCompleted || order.Status == domain.StatusProcessing) {
		http.Redirect(w, r, withQuery(h.redirects.ConfirmationURL, "order_id", order.ID), http.StatusSeeOther)
		return
	}

	target := withQuery(h.redirects.CheckoutURL, "error", "payment_failed")
	if order != nil {
		target = withQuery(target, "order_id", order.ID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// PaymentNotification receives the gateway's server push. Anything but a
// gateway or storage failure is acknowledged so the sender stops retrying.
func (h *Handler) PaymentNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.orders.HandleNotification(r.Context(), req.EventID, req.PaymentReference); err != nil {
		slog.ErrorContext(r.Context(), "payment notification not processed",
			"event_id", req.EventID, "payment_reference", req.PaymentReference, "error", err)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, v *cart.View, err error) {
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(v))
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, order *domain.Order, err error) {
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func requireSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, err := session.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return session.Session{}, false
	}
	return sess, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
