package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/localcart/api/responses"
	"github.com/angelmondragon/localcart/api/validators"
	"github.com/angelmondragon/localcart/pkg/db/models"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/pagination"
)

type orderLister interface {
	List(ctx context.Context, params pagination.Params) (pagination.Page[models.LocalOrder], error)
}

type paymentLister interface {
	List(ctx context.Context, params pagination.Params) (pagination.Page[models.LocalPayment], error)
}

// OrdersList pages through locally cached orders, newest first.
func OrdersList(repo orderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := repo.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := pageResponse[orderResponse]{Items: make([]orderResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, order := range page.Items {
			resp.Items = append(resp.Items, newOrderResponse(order))
		}
		responses.WriteSuccess(w, resp)
	}
}

// PaymentsList pages through the local payment history, newest first.
func PaymentsList(repo paymentLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := repo.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := pageResponse[paymentResponse]{Items: make([]paymentResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, payment := range page.Items {
			resp.Items = append(resp.Items, newPaymentResponse(payment))
		}
		responses.WriteSuccess(w, resp)
	}
}
