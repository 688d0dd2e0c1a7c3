// Package handler exposes the order service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/order"
)

// OrderService is the subset of order.Service the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Details, error)
	GetOrder(ctx context.Context, caller access.Identity, id string) (*order.Details, error)
	ListOrders(ctx context.Context, caller access.Identity, opts order.ListOptions) (*order.ListResult, error)
	TransitionState(ctx context.Context, caller access.Identity, id string, next order.State) (*order.Details, error)
	RateOrder(ctx context.Context, caller access.Identity, id string, ratings []order.FoodRating) (*order.RateResult, error)
}

var _ OrderService = (*order.Service)(nil)

// IdentityResolver turns the caller header into an access.Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, id string, expected access.Kind) (access.Identity, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the user and admin order routes.
type Handler struct {
	orders       OrderService
	resolver     IdentityResolver
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, orders OrderService, resolver IdentityResolver) *Handler {
	return &Handler{
		orders:       orders,
		resolver:     resolver,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router. It is meant to be mounted at /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/user/order", func(r chi.Router) {
		r.Use(h.authenticate(access.KindUser))
		r.Get("/current", h.listOrders)
		r.Post("/rate/{id}", h.rateOrder)
		// The same segment is an order id on GET and a restaurant id on POST.
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}", h.createOrder)
	})

	r.Route("/admin/order", func(r chi.Router) {
		r.Use(h.authenticate(access.KindAdmin))
		r.Get("/current", h.listOrders)
		r.Patch("/state/{id}", h.transitionState)
		r.Get("/{id}", h.getOrder)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
