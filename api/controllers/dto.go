package controllers

import (
	"time"

	"github.com/angelmondragon/localcart/internal/cartstate"
	"github.com/angelmondragon/localcart/internal/checkout"
	"github.com/angelmondragon/localcart/pkg/db/models"
	dbtypes "github.com/angelmondragon/localcart/pkg/db/types"
	"github.com/shopspring/decimal"
)

type moneyResponse struct {
	MinorUnits int64  `json:"minor_units"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

func newMoney(minor int64, currency string) moneyResponse {
	return moneyResponse{
		MinorUnits: minor,
		Amount:     decimal.New(minor, -2).StringFixed(2),
		Currency:   currency,
	}
}

type variantSelectionPayload struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

func toVariantSelections(in []variantSelectionPayload) dbtypes.VariantSelections {
	out := make(dbtypes.VariantSelections, 0, len(in))
	for _, v := range in {
		out = append(out, dbtypes.VariantSelection{Name: v.Name, Value: v.Value})
	}
	return out
}

func fromVariantSelections(in dbtypes.VariantSelections) []variantSelectionPayload {
	out := make([]variantSelectionPayload, 0, len(in))
	for _, v := range in {
		out = append(out, variantSelectionPayload{Name: v.Name, Value: v.Value})
	}
	return out
}

type cartItemResponse struct {
	ItemID               string                    `json:"item_id"`
	ProductID            string                    `json:"product_id"`
	Title                string                    `json:"title"`
	Quantity             int                       `json:"quantity"`
	UnitPrice            moneyResponse             `json:"unit_price"`
	TotalPrice           moneyResponse             `json:"total_price"`
	VariantSelections    []variantSelectionPayload `json:"variant_selections"`
	ThumbnailURL         *string                   `json:"thumbnail_url,omitempty"`
	LastModifiedAt       time.Time                 `json:"last_modified_at"`
	ExpiresAt            *time.Time                `json:"expires_at,omitempty"`
	PendingSyncOperation *string                   `json:"pending_sync_operation,omitempty"`
}

type cartStateResponse struct {
	Items                 []cartItemResponse `json:"items"`
	IsOffline             bool               `json:"is_offline"`
	HasExpiredItems       bool               `json:"has_expired_items"`
	LastSyncAt            *time.Time         `json:"last_sync_at,omitempty"`
	PendingOperationCount int                `json:"pending_operation_count"`
	ErrorMessage          *string            `json:"error_message,omitempty"`
}

func newCartStateResponse(state cartstate.CartState) cartStateResponse {
	resp := cartStateResponse{
		Items:                 make([]cartItemResponse, 0, len(state.Items)),
		IsOffline:             state.IsOffline,
		HasExpiredItems:       state.HasExpiredItems,
		LastSyncAt:            state.LastSyncAt,
		PendingOperationCount: state.PendingOperationCount,
		ErrorMessage:          state.ErrorMessage,
	}
	for _, item := range state.Items {
		row := cartItemResponse{
			ItemID:            item.ItemID,
			ProductID:         item.ProductID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         newMoney(item.UnitPriceMinorUnits, item.CurrencyCode),
			TotalPrice:        newMoney(item.TotalPriceMinorUnits, item.CurrencyCode),
			VariantSelections: fromVariantSelections(item.VariantSelections),
			ThumbnailURL:      item.ThumbnailURL,
			LastModifiedAt:    item.LastModifiedAt,
			ExpiresAt:         item.ExpiresAt,
		}
		if item.PendingSyncOperation != nil {
			op := item.PendingSyncOperation.String()
			row.PendingSyncOperation = &op
		}
		resp.Items = append(resp.Items, row)
	}
	return resp
}

type cartLineResponse struct {
	ItemID     string        `json:"item_id"`
	ProductID  string        `json:"product_id"`
	Quantity   int           `json:"quantity"`
	TotalPrice moneyResponse `json:"total_price"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}

func newCartLineResponse(line *models.CartLineItem) cartLineResponse {
	return cartLineResponse{
		ItemID:     line.ItemID,
		ProductID:  line.ProductID,
		Quantity:   line.Quantity,
		TotalPrice: newMoney(line.TotalPriceMinorUnits(), line.CurrencyCode),
		ExpiresAt:  line.ExpiresAtTime(),
	}
}

type orderResponse struct {
	RemoteOrderID string        `json:"remote_order_id"`
	ListingID     string        `json:"listing_id"`
	Total         moneyResponse `json:"total"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

func newOrderResponse(order models.LocalOrder) orderResponse {
	return orderResponse{
		RemoteOrderID: order.RemoteOrderID,
		ListingID:     order.ListingID,
		Total:         newMoney(order.TotalMinorUnits, order.CurrencyCode),
		Status:        order.Status,
		CreatedAt:     time.UnixMilli(order.CreatedAt).UTC(),
	}
}

type paymentResponse struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	ActionLabel string    `json:"action_label"`
	Confirmed   bool      `json:"confirmed"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func newPaymentResponse(p models.LocalPayment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		OrderID:     p.OrderID,
		ActionLabel: p.ActionLabel,
		Confirmed:   p.Confirmed,
		RecordedAt:  time.UnixMilli(p.RecordedAt).UTC(),
	}
}

type itemFailureResponse struct {
	ItemID  string `json:"item_id"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type checkoutResponse struct {
	Outcome     string                `json:"outcome"`
	CartCleared bool                  `json:"cart_cleared"`
	Orders      []orderResponse       `json:"orders"`
	Failures    []itemFailureResponse `json:"failures"`
}

func newCheckoutResponse(result *checkout.Result) checkoutResponse {
	resp := checkoutResponse{
		Outcome:     result.Outcome.String(),
		CartCleared: result.Outcome.ClearsCart(),
		Orders:      make([]orderResponse, 0, len(result.Orders)),
		Failures:    make([]itemFailureResponse, 0, len(result.Failures)),
	}
	for _, order := range result.Orders {
		resp.Orders = append(resp.Orders, newOrderResponse(order))
	}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, itemFailureResponse{
			ItemID:  failure.ItemID,
			Title:   failure.Title,
			Kind:    string(failure.Kind),
			Message: failure.Message,
		})
	}
	return resp
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
