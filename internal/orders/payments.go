package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/localcart/internal/repo"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentHistory is the append-only local log of checkout payments.
type PaymentHistory struct {
	repo.Base
}

// NewPaymentHistory binds the history to conn.
func NewPaymentHistory(conn *gorm.DB) (*PaymentHistory, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	return &PaymentHistory{Base: repo.NewBase(conn)}, nil
}

// Append adds an entry. A missing id is generated.
func (h *PaymentHistory) Append(ctx context.Context, payment models.LocalPayment) (*models.LocalPayment, error) {
	if strings.TrimSpace(payment.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if err := h.DB(ctx).Create(&payment).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append payment history")
	}
	return &payment, nil
}

// List returns entries newest first.
func (h *PaymentHistory) List(ctx context.Context, params pagination.Params) (pagination.Page[models.LocalPayment], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.LocalPayment]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := h.DB(ctx).
		Order("recorded_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("recorded_at < ? OR (recorded_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.LocalPayment
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.LocalPayment]{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list payment history")
	}
	if rows == nil {
		rows = []models.LocalPayment{}
	}
	return pagination.Trim(rows, params.Limit, func(p models.LocalPayment) pagination.Cursor {
		return pagination.Cursor{At: p.RecordedAt, ID: p.ID}
	}), nil
}
