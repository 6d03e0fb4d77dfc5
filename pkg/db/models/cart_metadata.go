package models

// CartMetadataID is the primary key of the singleton metadata row.
const CartMetadataID = 1

// CartMetadata is the singleton bookkeeping row for the local cart.
type CartMetadata struct {
	ID               int     `gorm:"column:id;primaryKey;autoIncrement:false"`
	LastSyncAt       *int64  `gorm:"column:last_sync_at"`
	LastErrorMessage *string `gorm:"column:last_error_message"`
}

func (CartMetadata) TableName() string { return "cart_metadata" }
