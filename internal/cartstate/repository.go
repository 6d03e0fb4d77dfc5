package cartstate

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/localcart/internal/cart"
	"github.com/angelmondragon/localcart/internal/connectivity"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/stream"
)

const defaultSnapshotWait = 5 * time.Second

type dataSource interface {
	Upsert(ctx context.Context, update cart.ItemUpdate, opts ...cart.UpsertOption) (*models.CartLineItem, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	RemoveByID(ctx context.Context, itemID string) error
	EvictExpired(ctx context.Context) (int64, error)
	Viewport(ctx context.Context) <-chan cart.Viewport
	Metadata(ctx context.Context) <-chan models.CartMetadata
	UpdateLastSync(ctx context.Context) error
	ClearErrorMessage(ctx context.Context) error
	RecordError(ctx context.Context, message string) error
}

// RepositoryParams wires a Repository.
type RepositoryParams struct {
	DataSource   dataSource
	Connectivity connectivity.Source
	Logger       *logger.Logger
	SnapshotWait time.Duration
}

// Repository owns the unified cart state and the cart commands.
type Repository struct {
	ds           dataSource
	conn         connectivity.Source
	logg         *logger.Logger
	snapshotWait time.Duration
}

// NewRepository builds a Repository.
func NewRepository(params RepositoryParams) (*Repository, error) {
	if params.DataSource == nil {
		return nil, fmt.Errorf("data source required")
	}
	if params.Connectivity == nil {
		return nil, fmt.Errorf("connectivity source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	wait := params.SnapshotWait
	if wait <= 0 {
		wait = defaultSnapshotWait
	}
	return &Repository{
		ds:           params.DataSource,
		conn:         params.Connectivity,
		logg:         params.Logger,
		snapshotWait: wait,
	}, nil
}

// State streams the cart state. The first value arrives once the viewport,
// metadata and connectivity have each produced one; identical consecutive
// states are dropped. Every upstream subscription ends with ctx.
func (r *Repository) State(ctx context.Context) <-chan CartState {
	online := stream.Distinct(ctx, r.conn.Subscribe(ctx), func(a, b bool) bool { return a == b })
	combined := stream.CombineLatest3(ctx, r.ds.Viewport(ctx), r.ds.Metadata(ctx), online, compose)
	return stream.Distinct(ctx, combined, CartState.Equal)
}

// Snapshot returns the current state.
func (r *Repository) Snapshot(ctx context.Context) (CartState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.snapshotWait)
	defer cancel()
	state, err := stream.First(ctx, r.State(ctx))
	if err != nil {
		return CartState{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cart state unavailable")
	}
	return state, nil
}

// AddOrUpdate merges update into the cart.
func (r *Repository) AddOrUpdate(ctx context.Context, update cart.ItemUpdate, opts ...cart.UpsertOption) (*models.CartLineItem, error) {
	line, err := r.ds.Upsert(ctx, update, opts...)
	if err != nil {
		return nil, r.fail(ctx, "add cart item", err)
	}
	r.touch(ctx)
	return line, nil
}

// UpdateQuantity sets the quantity of itemID. Zero or less removes it.
func (r *Repository) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	ctx = r.logg.WithItemID(ctx, itemID)
	if err := r.ds.UpdateQuantity(ctx, itemID, quantity); err != nil {
		return r.fail(ctx, "update cart item quantity", err)
	}
	r.touch(ctx)
	return nil
}

// Remove deletes itemID from the cart.
func (r *Repository) Remove(ctx context.Context, itemID string) error {
	ctx = r.logg.WithItemID(ctx, itemID)
	if err := r.ds.RemoveByID(ctx, itemID); err != nil {
		return r.fail(ctx, "remove cart item", err)
	}
	r.touch(ctx)
	return nil
}

// Refresh evicts expired lines and returns how many were removed.
func (r *Repository) Refresh(ctx context.Context) (int64, error) {
	removed, err := r.ds.EvictExpired(ctx)
	if err != nil {
		return 0, r.fail(ctx, "refresh cart", err)
	}
	r.touch(ctx)
	return removed, nil
}

// OnLogin is called after the user signs in. The local cart has nothing to
// reconcile yet.
func (r *Repository) OnLogin(ctx context.Context) error {
	r.logg.Info(ctx, "cart login hook")
	return nil
}

// ClearError removes the user-facing error from the cart state.
func (r *Repository) ClearError(ctx context.Context) error {
	return r.ds.ClearErrorMessage(ctx)
}

// touch stamps the last sync time. The mutation is already durable, so a
// failure here is only logged.
func (r *Repository) touch(ctx context.Context) {
	if err := r.ds.UpdateLastSync(context.WithoutCancel(ctx)); err != nil {
		r.logg.Error(ctx, "failed to update cart last sync", err)
	}
}

// fail records a user-facing message for err and returns err unchanged.
func (r *Repository) fail(ctx context.Context, action string, err error) error {
	message := userMessage(err)
	if recErr := r.ds.RecordError(context.WithoutCancel(ctx), message); recErr != nil {
		r.logg.Error(ctx, "failed to record cart error", recErr)
	}
	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), action+" failed")
	return err
}

func userMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return "something went wrong with your cart"
}
