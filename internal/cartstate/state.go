// Package cartstate folds the cart viewport, cart metadata and connectivity
// into the single CartState the rest of the daemon observes, and routes cart
// commands to the local data source.
package cartstate

import (
	"slices"
	"time"

	"github.com/angelmondragon/localcart/internal/cart"
	"github.com/angelmondragon/localcart/pkg/db/models"
	dbtypes "github.com/angelmondragon/localcart/pkg/db/types"
	"github.com/angelmondragon/localcart/pkg/enums"
)

// Item is one active cart line as observed by consumers.
type Item struct {
	ItemID               string
	ProductID            string
	Title                string
	Quantity             int
	UnitPriceMinorUnits  int64
	TotalPriceMinorUnits int64
	CurrencyCode         string
	VariantSelections    dbtypes.VariantSelections
	ThumbnailURL         *string
	LastModifiedAt       time.Time
	ExpiresAt            *time.Time
	PendingSyncOperation *enums.PendingSyncOperation
}

// CartState is the unified view of the cart.
type CartState struct {
	Items                 []Item
	IsOffline             bool
	HasExpiredItems       bool
	LastSyncAt            *time.Time
	PendingOperationCount int
	ErrorMessage          *string
}

// Equal reports whether two states would render identically.
func (s CartState) Equal(other CartState) bool {
	return s.IsOffline == other.IsOffline &&
		s.HasExpiredItems == other.HasExpiredItems &&
		s.PendingOperationCount == other.PendingOperationCount &&
		equalPtr(s.LastSyncAt, other.LastSyncAt, time.Time.Equal) &&
		equalPtr(s.ErrorMessage, other.ErrorMessage, func(a, b string) bool { return a == b }) &&
		slices.EqualFunc(s.Items, other.Items, Item.equal)
}

func (i Item) equal(other Item) bool {
	return i.ItemID == other.ItemID &&
		i.ProductID == other.ProductID &&
		i.Title == other.Title &&
		i.Quantity == other.Quantity &&
		i.UnitPriceMinorUnits == other.UnitPriceMinorUnits &&
		i.CurrencyCode == other.CurrencyCode &&
		i.VariantSelections.Equal(other.VariantSelections) &&
		i.LastModifiedAt.Equal(other.LastModifiedAt) &&
		equalPtr(i.ThumbnailURL, other.ThumbnailURL, func(a, b string) bool { return a == b }) &&
		equalPtr(i.ExpiresAt, other.ExpiresAt, time.Time.Equal) &&
		equalPtr(i.PendingSyncOperation, other.PendingSyncOperation, func(a, b enums.PendingSyncOperation) bool { return a == b })
}

func equalPtr[T any](a, b *T, eq func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return eq(*a, *b)
}

// compose is a pure function of its three inputs.
func compose(vp cart.Viewport, meta models.CartMetadata, online bool) CartState {
	state := CartState{
		Items:           make([]Item, 0, len(vp.ActiveItems)),
		IsOffline:       !online,
		HasExpiredItems: vp.ExpiredCount > 0,
		ErrorMessage:    meta.LastErrorMessage,
	}
	for _, row := range vp.ActiveItems {
		if row.PendingSyncOperation != nil {
			state.PendingOperationCount++
		}
		state.Items = append(state.Items, toItem(row))
	}
	if meta.LastSyncAt != nil {
		ts := time.UnixMilli(*meta.LastSyncAt).UTC()
		state.LastSyncAt = &ts
	}
	return state
}

func toItem(row models.CartLineItem) Item {
	return Item{
		ItemID:               row.ItemID,
		ProductID:            row.ProductID,
		Title:                row.Title,
		Quantity:             row.Quantity,
		UnitPriceMinorUnits:  row.UnitPriceMinorUnits,
		TotalPriceMinorUnits: row.TotalPriceMinorUnits(),
		CurrencyCode:         row.CurrencyCode,
		VariantSelections:    row.VariantSelections,
		ThumbnailURL:         row.ThumbnailURL,
		LastModifiedAt:       time.UnixMilli(row.LastModifiedAt).UTC(),
		ExpiresAt:            row.ExpiresAtTime(),
		PendingSyncOperation: row.PendingSyncOperation,
	}
}
