package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/pkg/httpmiddleware"
)

type identityKey struct{}

// IdentityFromContext returns the caller resolved by the authentication
// middleware, or an unknown identity.
func IdentityFromContext(ctx context.Context) access.Identity {
	if id, ok := ctx.Value(identityKey{}).(access.Identity); ok {
		return id
	}
	return access.Unknown()
}

// authenticate resolves the caller header against the party directory. The
// expected kind comes from the route group: a user id presented on an admin
// route does not resolve.
func (h *Handler) authenticate(expected access.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(httpmiddleware.CallerHeader))

			id, err := h.resolver.Resolve(ctx, raw, expected)
			if err != nil {
				zctx.From(ctx).Error("Resolve caller", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if id.Kind == access.KindUnknown {
				writeError(w, http.StatusUnauthorized, access.ErrUnauthorized.Error())
				return
			}

			ctx = context.WithValue(ctx, identityKey{}, id)
			ctx = zctx.With(ctx,
				zap.String("caller_id", id.ID),
				zap.Stringer("caller_kind", id.Kind),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
