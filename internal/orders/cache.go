// Package orders keeps the local record of orders created during checkout and
// the payment history that goes with them.
package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/localcart/internal/repo"
	"github.com/angelmondragon/localcart/pkg/db"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderCache stores one LocalOrder per remote order id.
type OrderCache struct {
	repo.Base
}

// NewOrderCache binds the cache to conn.
func NewOrderCache(conn *gorm.DB) (*OrderCache, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	return &OrderCache{Base: repo.NewBase(conn)}, nil
}

// Put records order, replacing an earlier record with the same remote id.
func (c *OrderCache) Put(ctx context.Context, order models.LocalOrder) error {
	if strings.TrimSpace(order.RemoteOrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "remote order id is required")
	}
	err := c.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "remote_order_id"}},
		UpdateAll: true,
	}).Create(&order).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cache local order")
	}
	return nil
}

// Get returns the cached order for remoteOrderID.
func (c *OrderCache) Get(ctx context.Context, remoteOrderID string) (*models.LocalOrder, error) {
	var order models.LocalOrder
	err := c.DB(ctx).Where("remote_order_id = ?", remoteOrderID).Take(&order).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load local order")
	}
	return &order, nil
}

// List returns cached orders newest first.
func (c *OrderCache) List(ctx context.Context, params pagination.Params) (pagination.Page[models.LocalOrder], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.LocalOrder]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := c.DB(ctx).
		Order("created_at DESC").
		Order("remote_order_id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND remote_order_id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.LocalOrder
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.LocalOrder]{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list local orders")
	}
	if rows == nil {
		rows = []models.LocalOrder{}
	}
	return pagination.Trim(rows, params.Limit, func(o models.LocalOrder) pagination.Cursor {
		return pagination.Cursor{At: o.CreatedAt, ID: o.RemoteOrderID}
	}), nil
}
