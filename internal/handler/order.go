package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-orders/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	caller := IdentityFromContext(r.Context())

	d, err := readBody(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	body, err := decodeCreateOrder(d)
	if err != nil {
		respondError(w, r, err)
		return
	}

	details, err := h.orders.CreateOrder(r.Context(), order.CreateRequest{
		RestaurantID:   chi.URLParam(r, "id"),
		UserID:         caller.ID,
		Items:          body.Items,
		Address:        body.Address,
		PhoneToContact: body.PhoneToContact,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeDetails(e, details) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := h.orders.GetOrder(r.Context(), IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeDetails(e, details) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.orders.ListOrders(r.Context(), IdentityFromContext(r.Context()), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeList(e, res) })
}

func (h *Handler) transitionState(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	next, err := decodeNewState(d)
	if err != nil {
		respondError(w, r, err)
		return
	}

	details, err := h.orders.TransitionState(r.Context(), IdentityFromContext(r.Context()), chi.URLParam(r, "id"), next)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeDetails(e, details) })
}

func (h *Handler) rateOrder(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ratings, err := decodeRatings(d)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.orders.RateOrder(r.Context(), IdentityFromContext(r.Context()), chi.URLParam(r, "id"), ratings)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRateResult(e, res) })
}

// parseListOptions reads limit, skip, sortBy, sortOrder and search. Search
// filters by order state; sort values are validated by the service.
func parseListOptions(r *http.Request) (order.ListOptions, error) {
	q := r.URL.Query()
	opts := order.ListOptions{
		SortBy:    order.SortField(q.Get("sortBy")),
		SortOrder: order.SortOrder(q.Get("sortOrder")),
	}

	var err error
	if search := q.Get("search"); search != "" {
		if opts.State, err = order.ParseState(search); err != nil {
			return opts, errors.Wrap(order.ErrInvalidQuery, err.Error())
		}
	}
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		return opts, errors.Wrap(order.ErrInvalidQuery, "limit: "+err.Error())
	}
	if opts.Skip, err = intParam(q.Get("skip")); err != nil {
		return opts, errors.Wrap(order.ErrInvalidQuery, "skip: "+err.Error())
	}
	return opts, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.Errorf("must not be negative, got %d", v)
	}
	return v, nil
}
