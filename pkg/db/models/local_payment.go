package models

// LocalPayment is one append-only payment history entry. It is informational
// and never the source of truth for payment state.
type LocalPayment struct {
	ID          string `gorm:"column:id;primaryKey"`
	OrderID     string `gorm:"column:order_id;not null"`
	ActionLabel string `gorm:"column:action_label;not null"`
	Confirmed   bool   `gorm:"column:confirmed;not null"`
	RecordedAt  int64  `gorm:"column:recorded_at;not null"`
}

func (LocalPayment) TableName() string { return "local_payments" }
