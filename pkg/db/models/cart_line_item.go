package models

import (
	"time"

	dbtypes "github.com/angelmondragon/localcart/pkg/db/types"
	"github.com/angelmondragon/localcart/pkg/enums"
)

// CartLineItem persists one product+variant combination held in the local cart.
type CartLineItem struct {
	ItemID               string                      `gorm:"column:item_id;primaryKey"`
	ProductID            string                      `gorm:"column:product_id;not null"`
	Title                string                      `gorm:"column:title;not null"`
	Quantity             int                         `gorm:"column:quantity;not null"`
	UnitPriceMinorUnits  int64                       `gorm:"column:unit_price_minor_units;not null"`
	CurrencyCode         string                      `gorm:"column:currency_code;not null"`
	VariantSelections    dbtypes.VariantSelections   `gorm:"column:variant_selections;type:text;not null"`
	VariantKey           string                      `gorm:"column:variant_key;not null"`
	ThumbnailURL         *string                     `gorm:"column:thumbnail_url"`
	LastModifiedAt       int64                       `gorm:"column:last_modified_at;not null"`
	ExpiresAt            *int64                      `gorm:"column:expires_at"`
	PendingSyncOperation *enums.PendingSyncOperation `gorm:"column:pending_sync_operation"`
}

func (CartLineItem) TableName() string { return "cart_line_items" }

// TotalPriceMinorUnits is the line total in currency minor units.
func (c CartLineItem) TotalPriceMinorUnits() int64 {
	return c.UnitPriceMinorUnits * int64(c.Quantity)
}

// IsExpiredAt reports whether the line's TTL has elapsed at nowMillis.
// Lines without an expiry never expire.
func (c CartLineItem) IsExpiredAt(nowMillis int64) bool {
	return c.ExpiresAt != nil && *c.ExpiresAt <= nowMillis
}

// ExpiresAtTime converts the stored expiry to a time.Time.
func (c CartLineItem) ExpiresAtTime() *time.Time {
	if c.ExpiresAt == nil {
		return nil
	}
	ts := time.UnixMilli(*c.ExpiresAt).UTC()
	return &ts
}
