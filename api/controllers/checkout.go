package controllers

import (
	"net/http"

	"github.com/angelmondragon/localcart/api/responses"
	"github.com/angelmondragon/localcart/internal/checkout"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
)

// CheckoutRun orders every active cart line. Partial and failed runs still
// answer 200; the outcome and per-line failures are in the body.
func CheckoutRun(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		result, err := svc.Checkout(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(result))
	}
}
