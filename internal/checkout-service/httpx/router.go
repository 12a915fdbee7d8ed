package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/httpx/middlewares"
)

const requestTimeout = 15 * time.Second

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Gateway callbacks carry no customer identity.
	r.Get("/payments/return", handler.PaymentReturn)
	r.Post("/payments/notifications", handler.PaymentNotification)

	r.Group(func(r chi.Router) {
		r.Use(middlewares.RequireSession)

		r.Get("/cart", handler.GetCart)
		r.Post("/cart/lines", handler.AddCartLine)
		r.Put("/cart/lines/{productID}", handler.SetCartLine)
		r.Post("/cart/lines/{productID}/decrement", handler.DecrementCartLine)
		r.Delete("/cart/lines/{productID}", handler.DeleteCartLine)

		r.Post("/checkout", handler.Checkout)

		r.Get("/orders", handler.ListOrders)
		r.Get("/orders/{id}", handler.GetOrderByID)
		r.Get("/orders/{id}/history", handler.OrderHistory)
		r.Get("/orders/{id}/checkout-log", handler.OrderCheckoutLog)
		r.Post("/orders/{id}/payment", handler.SubmitPayment)
		r.Post("/orders/{id}/payment/retry", handler.PayAgain)
		r.Post("/orders/{id}/cancel", handler.CancelOrder)
	})
	return r
}
