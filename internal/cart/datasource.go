package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/localcart/internal/cartstore"
	"github.com/angelmondragon/localcart/pkg/db/models"
	dbtypes "github.com/angelmondragon/localcart/pkg/db/types"
	"github.com/angelmondragon/localcart/pkg/enums"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/stream"
)

// DefaultTTL is how long a new line stays in the cart without an override.
const DefaultTTL = 2 * time.Hour

type cartStore interface {
	Update(ctx context.Context, fn func(tx *cartstore.Tx) error) error
	DeleteByID(ctx context.Context, itemID string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, tsMillis int64) (int64, error)
	QueryAll(ctx context.Context) ([]models.CartLineItem, error)
	Items(ctx context.Context) <-chan []models.CartLineItem
	Metadata(ctx context.Context) <-chan models.CartMetadata
	WriteMetadata(ctx context.Context, patch cartstore.MetadataPatch) (models.CartMetadata, error)
}

// ItemUpdate carries the product snapshot for an add-or-update.
type ItemUpdate struct {
	ProductID           string
	Title               string
	Quantity            int
	UnitPriceMinorUnits int64
	CurrencyCode        string
	VariantSelections   dbtypes.VariantSelections
	ThumbnailURL        *string
}

// Viewport is the point-in-time split of stored lines into active and
// expired.
type Viewport struct {
	ActiveItems  []models.CartLineItem
	ExpiredCount int
	ComputedAt   time.Time
}

// UpsertOption tunes a single Upsert call.
type UpsertOption func(*upsertOptions)

type upsertOptions struct {
	ttl          time.Duration
	noExpiry     bool
	clearPending bool
}

// WithTTL overrides the default TTL for a newly created line.
func WithTTL(ttl time.Duration) UpsertOption {
	return func(o *upsertOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithoutExpiry creates the line with no TTL.
func WithoutExpiry() UpsertOption {
	return func(o *upsertOptions) {
		o.noExpiry = true
	}
}

// ClearPending leaves the line with no pending sync operation.
func ClearPending() UpsertOption {
	return func(o *upsertOptions) {
		o.clearPending = true
	}
}

// DataSourceParams wires a DataSource.
type DataSourceParams struct {
	Store      cartStore
	Logger     *logger.Logger
	DefaultTTL time.Duration
	Now        func() time.Time
}

// DataSource applies the cart rules (TTL, merge, eviction) on top of the
// store.
type DataSource struct {
	store      cartStore
	logg       *logger.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// NewDataSource builds a DataSource.
func NewDataSource(params DataSourceParams) (*DataSource, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &DataSource{
		store:      params.Store,
		logg:       params.Logger,
		defaultTTL: ttl,
		now:        now,
	}, nil
}

// Upsert merges update into the line sharing its product and variant
// selections, or creates a new line. A merge adds to the stored quantity,
// refreshes the price snapshot and keeps the existing expiry. A matching line
// that has already expired is reset in place with a fresh quantity and TTL.
func (d *DataSource) Upsert(ctx context.Context, update ItemUpdate, opts ...UpsertOption) (*models.CartLineItem, error) {
	if err := validateUpdate(update); err != nil {
		return nil, err
	}
	options := upsertOptions{ttl: d.defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	var saved models.CartLineItem
	err := d.store.Update(ctx, func(tx *cartstore.Tx) error {
		nowMillis := d.now().UnixMilli()
		existing, err := tx.FindByCompoundKey(update.ProductID, update.VariantSelections.Key())
		if err != nil {
			return err
		}

		var line models.CartLineItem
		switch {
		case existing != nil && !existing.IsExpiredAt(nowMillis):
			line = *existing
			line.Quantity += update.Quantity
			line.PendingSyncOperation = mergedPending(existing.PendingSyncOperation)
		default:
			// An expired match keeps its row id but restarts as a new line.
			line = models.CartLineItem{
				ProductID:            update.ProductID,
				VariantSelections:    update.VariantSelections,
				Quantity:             update.Quantity,
				PendingSyncOperation: pendingOp(enums.PendingSyncAdd),
			}
			if existing != nil {
				line.ItemID = existing.ItemID
				line.ThumbnailURL = existing.ThumbnailURL
			}
			if !options.noExpiry {
				expiresAt := nowMillis + options.ttl.Milliseconds()
				line.ExpiresAt = &expiresAt
			}
		}
		line.Title = update.Title
		line.UnitPriceMinorUnits = update.UnitPriceMinorUnits
		line.CurrencyCode = update.CurrencyCode
		if update.ThumbnailURL != nil {
			line.ThumbnailURL = update.ThumbnailURL
		}
		line.LastModifiedAt = nowMillis
		if options.clearPending {
			line.PendingSyncOperation = nil
		}

		if err := tx.Put(&line); err != nil {
			return err
		}
		saved = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// UpdateQuantity sets an absolute quantity. A quantity of zero or less removes
// the line.
func (d *DataSource) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	return d.store.Update(ctx, func(tx *cartstore.Tx) error {
		existing, err := tx.FindByID(itemID)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart item %s not found", itemID))
		}
		if quantity <= 0 {
			_, err := tx.Delete(itemID)
			return err
		}
		existing.Quantity = quantity
		existing.LastModifiedAt = d.now().UnixMilli()
		existing.PendingSyncOperation = mergedPending(existing.PendingSyncOperation)
		return tx.Put(existing)
	})
}

// RemoveByID deletes the line. Removing an unknown id is not an error.
func (d *DataSource) RemoveByID(ctx context.Context, itemID string) error {
	_, err := d.store.DeleteByID(ctx, itemID)
	return err
}

// EvictExpired deletes every line whose expiry has passed and returns how
// many were removed.
func (d *DataSource) EvictExpired(ctx context.Context) (int64, error) {
	removed, err := d.store.DeleteExpiredBefore(ctx, d.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		d.logg.Info(d.logg.WithField(ctx, "evicted", removed), "evicted expired cart items")
	}
	return removed, nil
}

// GetActive returns the lines that have not expired. Expired lines are
// filtered but left for EvictExpired.
func (d *DataSource) GetActive(ctx context.Context) ([]models.CartLineItem, error) {
	rows, err := d.store.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	return d.project(rows).ActiveItems, nil
}

// Viewport streams the active/expired split, recomputed on every store
// change.
func (d *DataSource) Viewport(ctx context.Context) <-chan Viewport {
	return stream.Map(ctx, d.store.Items(ctx), d.project)
}

// Metadata streams the metadata row.
func (d *DataSource) Metadata(ctx context.Context) <-chan models.CartMetadata {
	return d.store.Metadata(ctx)
}

// UpdateLastSync stamps the metadata with the current time.
func (d *DataSource) UpdateLastSync(ctx context.Context) error {
	nowMillis := d.now().UnixMilli()
	_, err := d.store.WriteMetadata(ctx, cartstore.MetadataPatch{LastSyncAt: &nowMillis})
	return err
}

// ClearErrorMessage removes the stored user-facing error.
func (d *DataSource) ClearErrorMessage(ctx context.Context) error {
	_, err := d.store.WriteMetadata(ctx, cartstore.MetadataPatch{ClearError: true})
	return err
}

// RecordError stores a user-facing error message.
func (d *DataSource) RecordError(ctx context.Context, message string) error {
	_, err := d.store.WriteMetadata(ctx, cartstore.MetadataPatch{LastErrorMessage: &message})
	return err
}

func (d *DataSource) project(rows []models.CartLineItem) Viewport {
	now := d.now()
	nowMillis := now.UnixMilli()
	vp := Viewport{
		ActiveItems: make([]models.CartLineItem, 0, len(rows)),
		ComputedAt:  now,
	}
	for _, row := range rows {
		if row.IsExpiredAt(nowMillis) {
			vp.ExpiredCount++
			continue
		}
		vp.ActiveItems = append(vp.ActiveItems, row)
	}
	return vp
}

func validateUpdate(update ItemUpdate) error {
	if strings.TrimSpace(update.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if update.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if update.UnitPriceMinorUnits < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}
	return nil
}

// mergedPending keeps ADD for lines the remote has never seen; anything else
// becomes UPDATE.
func mergedPending(current *enums.PendingSyncOperation) *enums.PendingSyncOperation {
	if current != nil && *current == enums.PendingSyncAdd {
		return pendingOp(enums.PendingSyncAdd)
	}
	return pendingOp(enums.PendingSyncUpdate)
}

func pendingOp(op enums.PendingSyncOperation) *enums.PendingSyncOperation {
	return &op
}
