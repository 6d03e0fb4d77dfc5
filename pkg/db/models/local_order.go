package models

// LocalOrder caches an order created remotely during checkout.
type LocalOrder struct {
	RemoteOrderID   string `gorm:"column:remote_order_id;primaryKey"`
	ListingID       string `gorm:"column:listing_id;not null"`
	TotalMinorUnits int64  `gorm:"column:total_minor_units;not null"`
	CurrencyCode    string `gorm:"column:currency_code;not null"`
	Status          string `gorm:"column:status;not null"`
	CreatedAt       int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (LocalOrder) TableName() string { return "local_orders" }
