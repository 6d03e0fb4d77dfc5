package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/localcart/api/responses"
	"github.com/angelmondragon/localcart/api/validators"
	"github.com/angelmondragon/localcart/internal/cart"
	"github.com/angelmondragon/localcart/internal/cartstate"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
)

const (
	maxTitleLength         = 200
	defaultStreamHeartbeat = 15 * time.Second
)

// CartService is the cart surface the handlers need.
type CartService interface {
	State(ctx context.Context) <-chan cartstate.CartState
	Snapshot(ctx context.Context) (cartstate.CartState, error)
	AddOrUpdate(ctx context.Context, update cart.ItemUpdate, opts ...cart.UpsertOption) (*models.CartLineItem, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	Remove(ctx context.Context, itemID string) error
	Refresh(ctx context.Context) (int64, error)
	OnLogin(ctx context.Context) error
	ClearError(ctx context.Context) error
}

// CartFetch returns the current cart state.
func CartFetch(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartStateResponse(state))
	}
}

// CartStream pushes every cart state change as a server-sent event until the
// client disconnects. A comment line is sent every heartbeat to keep idle
// connections open.
func CartStream(svc CartService, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		ctx := r.Context()
		states := svc.State(ctx)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case state, ok := <-states:
				if !ok {
					return
				}
				payload, err := json.Marshal(newCartStateResponse(state))
				if err != nil {
					if logg != nil {
						logg.Error(ctx, "failed to encode cart state event", err)
					}
					continue
				}
				if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

type addItemRequest struct {
	ProductID           string                    `json:"product_id" validate:"required"`
	Title               string                    `json:"title" validate:"required"`
	Quantity            int                       `json:"quantity" validate:"min=1"`
	UnitPriceMinorUnits int64                     `json:"unit_price_minor_units" validate:"min=0"`
	CurrencyCode        string                    `json:"currency_code" validate:"required,len=3"`
	VariantSelections   []variantSelectionPayload `json:"variant_selections" validate:"dive"`
	ThumbnailURL        *string                   `json:"thumbnail_url" validate:"omitempty,url"`
	TTLSeconds          *int                      `json:"ttl_seconds" validate:"omitempty,min=1"`
	NoExpiry            bool                      `json:"no_expiry"`
}

func (req addItemRequest) toUpdate() (cart.ItemUpdate, []cart.UpsertOption) {
	update := cart.ItemUpdate{
		ProductID:           strings.TrimSpace(req.ProductID),
		Title:               validators.SanitizeString(req.Title, maxTitleLength),
		Quantity:            req.Quantity,
		UnitPriceMinorUnits: req.UnitPriceMinorUnits,
		CurrencyCode:        strings.ToUpper(req.CurrencyCode),
		VariantSelections:   toVariantSelections(req.VariantSelections),
		ThumbnailURL:        req.ThumbnailURL,
	}
	var opts []cart.UpsertOption
	switch {
	case req.NoExpiry:
		opts = append(opts, cart.WithoutExpiry())
	case req.TTLSeconds != nil:
		opts = append(opts, cart.WithTTL(time.Duration(*req.TTLSeconds)*time.Second))
	}
	return update, opts
}

// CartAddItem adds a product to the cart, merging with an existing line for
// the same product and variant selections.
func CartAddItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update, opts := req.toUpdate()
		line, err := svc.AddOrUpdate(r.Context(), update, opts...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartLineResponse(line))
	}
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// CartUpdateItem sets a line's quantity. Zero or less removes the line.
func CartUpdateItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
		if itemID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item id is required"))
			return
		}
		var req updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateQuantity(r.Context(), itemID, *req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"item_id": itemID, "quantity": max(*req.Quantity, 0)})
	}
}

// CartRemoveItem deletes a line. Unknown ids succeed.
func CartRemoveItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
		if err := svc.Remove(r.Context(), itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartRefresh evicts expired lines.
func CartRefresh(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := svc.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"evicted": removed})
	}
}

// CartLogin runs the post-login hook.
func CartLogin(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.OnLogin(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartClearError clears the stored cart error message.
func CartClearError(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearError(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
