package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/domain/order"
	"github.com/xenking/food-orders/internal/domain/party"
	"github.com/xenking/food-orders/pkg/httpmiddleware"
)

func writeError(w http.ResponseWriter, status int, message string) {
	httpmiddleware.WriteError(w, status, message)
}

// statusOf maps domain errors onto HTTP status codes. Unmapped errors are
// internal.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errMalformed), errors.Is(err, order.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, party.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidStateTransition),
		errors.Is(err, order.ErrAlreadyRated):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, order.ErrNotRatable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg := http.StatusText(status)
		if id := httpmiddleware.RequestIDFromContext(r.Context()); id != "" {
			msg += " (request " + id + ")"
		}
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
