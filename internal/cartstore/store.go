// Package cartstore is the durable home of cart line items and the singleton
// cart metadata row. Writes are serialized; every committed write republishes
// the affected stream to subscribers.
package cartstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/localcart/pkg/db"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/stream"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetadataPatch updates individual metadata fields. Nil fields are left as
// they are; ClearError nulls the stored error message.
type MetadataPatch struct {
	LastSyncAt       *int64
	LastErrorMessage *string
	ClearError       bool
}

func (p MetadataPatch) updates() map[string]any {
	out := map[string]any{}
	if p.LastSyncAt != nil {
		out["last_sync_at"] = *p.LastSyncAt
	}
	switch {
	case p.ClearError:
		out["last_error_message"] = nil
	case p.LastErrorMessage != nil:
		out["last_error_message"] = *p.LastErrorMessage
	}
	return out
}

// Store persists cart rows and broadcasts their current contents.
type Store struct {
	db   *gorm.DB
	logg *logger.Logger

	writeMu sync.Mutex
	items   *stream.Broadcaster[[]models.CartLineItem]
	meta    *stream.Broadcaster[models.CartMetadata]
}

// New binds a store to conn and loads the current rows so the first
// subscriber sees them immediately.
func New(ctx context.Context, conn *gorm.DB, logg *logger.Logger) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Store{db: conn, logg: logg}

	rows, err := s.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := s.ensureMetadata(ctx)
	if err != nil {
		return nil, err
	}
	s.items = stream.NewBroadcaster(stream.WithInitial(rows))
	s.meta = stream.NewBroadcaster(stream.WithInitial(meta))
	return s, nil
}

// Items streams the full set of rows, starting with the current contents.
func (s *Store) Items(ctx context.Context) <-chan []models.CartLineItem {
	return s.items.Subscribe(ctx)
}

// Metadata streams the metadata row, starting with the current value.
func (s *Store) Metadata(ctx context.Context) <-chan models.CartMetadata {
	return s.meta.Subscribe(ctx)
}

// QueryAll returns every stored row, expired ones included.
func (s *Store) QueryAll(ctx context.Context) ([]models.CartLineItem, error) {
	var rows []models.CartLineItem
	err := s.db.WithContext(ctx).
		Order("last_modified_at ASC").
		Order("item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "query cart items")
	}
	if rows == nil {
		rows = []models.CartLineItem{}
	}
	return rows, nil
}

// Upsert inserts item or replaces the row sharing its compound key. When such
// a row exists under another item id, that id is kept.
func (s *Store) Upsert(ctx context.Context, item models.CartLineItem) (*models.CartLineItem, error) {
	var saved models.CartLineItem
	err := s.Update(ctx, func(tx *Tx) error {
		existing, err := tx.FindByCompoundKey(item.ProductID, item.VariantSelections.Key())
		if err != nil {
			return err
		}
		if existing != nil {
			item.ItemID = existing.ItemID
		}
		if err := tx.Put(&item); err != nil {
			return err
		}
		saved = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeleteByID removes the row with itemID and returns the number of rows
// removed.
func (s *Store) DeleteByID(ctx context.Context, itemID string) (int64, error) {
	var removed int64
	err := s.Update(ctx, func(tx *Tx) error {
		n, err := tx.Delete(itemID)
		removed = n
		return err
	})
	return removed, err
}

// DeleteExpiredBefore removes every row whose expiry is at or before
// tsMillis.
func (s *Store) DeleteExpiredBefore(ctx context.Context, tsMillis int64) (int64, error) {
	var removed int64
	err := s.Update(ctx, func(tx *Tx) error {
		res := tx.db.Where("expires_at IS NOT NULL AND expires_at <= ?", tsMillis).
			Delete(&models.CartLineItem{})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "delete expired cart items")
		}
		removed = res.RowsAffected
		if removed > 0 {
			tx.changed = true
		}
		return nil
	})
	return removed, err
}

// Update runs fn in a serialized transaction. The item stream is republished
// after commit when fn changed any row.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &Tx{}
	err := db.WithTx(ctx, s.db, func(gtx *gorm.DB) error {
		tx.db = gtx
		return fn(tx)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cart transaction")
	}
	if tx.changed {
		s.publishItems(context.WithoutCancel(ctx))
	}
	return nil
}

// ReadMetadata returns the metadata row, or defaults when it is missing.
func (s *Store) ReadMetadata(ctx context.Context) (models.CartMetadata, error) {
	var meta models.CartMetadata
	err := s.db.WithContext(ctx).Where("id = ?", models.CartMetadataID).Take(&meta).Error
	if err != nil {
		if db.IsNotFound(err) {
			return models.CartMetadata{ID: models.CartMetadataID}, nil
		}
		return models.CartMetadata{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "read cart metadata")
	}
	return meta, nil
}

// WriteMetadata applies patch to the metadata row without touching fields the
// patch leaves unset.
func (s *Store) WriteMetadata(ctx context.Context, patch MetadataPatch) (models.CartMetadata, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var meta models.CartMetadata
	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.FirstOrCreate(&meta, models.CartMetadata{ID: models.CartMetadataID}).Error; err != nil {
			return err
		}
		updates := patch.updates()
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.CartMetadata{}).
			Where("id = ?", models.CartMetadataID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", models.CartMetadataID).Take(&meta).Error
	})
	if err != nil {
		return models.CartMetadata{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "write cart metadata")
	}
	s.meta.Publish(meta)
	return meta, nil
}

// Close ends every open subscription.
func (s *Store) Close() {
	s.items.Close()
	s.meta.Close()
}

func (s *Store) ensureMetadata(ctx context.Context) (models.CartMetadata, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var meta models.CartMetadata
	err := s.db.WithContext(ctx).
		FirstOrCreate(&meta, models.CartMetadata{ID: models.CartMetadataID}).Error
	if err != nil {
		return models.CartMetadata{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "initialize cart metadata")
	}
	return meta, nil
}

// publishItems must be called with writeMu held so snapshots go out in
// commit order.
func (s *Store) publishItems(ctx context.Context) {
	rows, err := s.QueryAll(ctx)
	if err != nil {
		s.logg.Error(ctx, "failed to reload cart items after write", err)
		return
	}
	s.items.Publish(rows)
}

// Tx is the read-modify-write view handed to Update callbacks.
type Tx struct {
	db      *gorm.DB
	changed bool
}

// FindByID returns the row with itemID, or nil when absent.
func (t *Tx) FindByID(itemID string) (*models.CartLineItem, error) {
	var row models.CartLineItem
	err := t.db.Where("item_id = ?", itemID).Take(&row).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find cart item")
	}
	return &row, nil
}

// FindByCompoundKey returns the row for productID and the canonical variant
// key, or nil when absent.
func (t *Tx) FindByCompoundKey(productID, variantKey string) (*models.CartLineItem, error) {
	var row models.CartLineItem
	err := t.db.Where("product_id = ? AND variant_key = ?", productID, variantKey).Take(&row).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find cart item by compound key")
	}
	return &row, nil
}

// Put writes item, replacing any row with the same item id. A missing item id
// is generated.
func (t *Tx) Put(item *models.CartLineItem) error {
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	item.VariantKey = item.VariantSelections.Key()
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		UpdateAll: true,
	}).Create(item).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "write cart item")
	}
	t.changed = true
	return nil
}

// Delete removes the row with itemID and returns the number of rows removed.
func (t *Tx) Delete(itemID string) (int64, error) {
	res := t.db.Where("item_id = ?", itemID).Delete(&models.CartLineItem{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "delete cart item")
	}
	if res.RowsAffected > 0 {
		t.changed = true
	}
	return res.RowsAffected, nil
}
