// Package checkout turns the active cart into remote marketplace orders one
// line at a time, keeping every line that could not be ordered.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/localcart/pkg/db/models"
	"github.com/angelmondragon/localcart/pkg/enums"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/marketplace"
	"go.uber.org/multierr"
)

const (
	defaultPaymentMethod = "Card"
	cancelledMessage     = "checkout cancelled"
	unknownMessage       = "unexpected error while placing the order"
)

type cartItems interface {
	GetActive(ctx context.Context) ([]models.CartLineItem, error)
	RemoveByID(ctx context.Context, itemID string) error
	UpdateLastSync(ctx context.Context) error
	RecordError(ctx context.Context, message string) error
}

type remoteOrders interface {
	CreateOrder(ctx context.Context, req marketplace.CreateOrderRequest) (*marketplace.Order, error)
	ConfirmPayment(ctx context.Context, orderID string) error
}

type orderCache interface {
	Put(ctx context.Context, order models.LocalOrder) error
}

type paymentHistory interface {
	Append(ctx context.Context, payment models.LocalPayment) (*models.LocalPayment, error)
}

type outcomeRecorder interface {
	IncOutcome(outcome string)
	IncItemFailure(kind string)
	IncBookkeepingError()
}

// Service executes checkout.
type Service interface {
	Checkout(ctx context.Context) (*Result, error)
}

// Params wires the checkout service.
type Params struct {
	Logger        *logger.Logger
	Items         cartItems
	Remote        remoteOrders
	Orders        orderCache
	Payments      paymentHistory
	Metrics       outcomeRecorder
	PaymentMethod string
	Now           func() time.Time
}

// Result is the outcome of one checkout run. Orders and Failures keep the
// order in which lines were attempted.
type Result struct {
	Outcome  enums.CheckoutOutcome
	Orders   []models.LocalOrder
	Failures []ItemFailure
}

// ItemFailure describes a line that stayed in the cart.
type ItemFailure struct {
	ItemID  string
	Title   string
	Kind    pkgerrors.Code
	Message string
}

type service struct {
	logg          *logger.Logger
	items         cartItems
	remote        remoteOrders
	orders        orderCache
	payments      paymentHistory
	metrics       outcomeRecorder
	paymentMethod string
	now           func() time.Time
}

// NewService builds the checkout service.
func NewService(params Params) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("cart items required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote orders client required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order cache required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment history required")
	}
	method := strings.TrimSpace(params.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:          params.Logger,
		items:         params.Items,
		remote:        params.Remote,
		orders:        params.Orders,
		payments:      params.Payments,
		metrics:       params.Metrics,
		paymentMethod: method,
		now:           now,
	}, nil
}

// tally is the fold accumulator.
type tally struct {
	orders   []models.LocalOrder
	failures []ItemFailure
}

// Checkout orders every active line in sequence. Only a failure to read the
// cart is returned as an error; per-line failures are folded into the result.
// ctx is checked between lines, never during one.
func (s *service) Checkout(ctx context.Context) (*Result, error) {
	items, err := s.items.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.record(enums.CheckoutOutcomeEmpty, nil)
		return &Result{Outcome: enums.CheckoutOutcomeEmpty}, nil
	}

	acc := tally{}
	for idx, item := range items {
		if ctx.Err() != nil {
			acc.failures = append(acc.failures, cancelled(items[idx:])...)
			break
		}
		acc = s.step(ctx, acc, item)
	}

	if err := s.items.UpdateLastSync(context.WithoutCancel(ctx)); err != nil {
		s.logg.Error(ctx, "failed to update last sync after checkout", err)
	}
	if len(acc.failures) > 0 {
		if err := s.items.RecordError(context.WithoutCancel(ctx), FailureSummary(len(acc.failures))); err != nil {
			s.logg.Error(ctx, "failed to record checkout error", err)
		}
	}

	result := &Result{
		Outcome:  enums.CheckoutOutcomeFor(len(acc.orders), len(acc.failures)),
		Orders:   acc.orders,
		Failures: acc.failures,
	}
	s.record(result.Outcome, result.Failures)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"outcome":  result.Outcome.String(),
		"ordered":  len(result.Orders),
		"failures": len(result.Failures),
	}), "checkout completed")
	return result, nil
}

func (s *service) step(ctx context.Context, acc tally, item models.CartLineItem) tally {
	itemCtx := s.logg.WithItemID(ctx, item.ItemID)

	order, err := s.remote.CreateOrder(itemCtx, marketplace.CreateOrderRequest{
		ListingID:             item.ProductID,
		Quantity:              item.Quantity,
		TotalAmountMinorUnits: item.TotalPriceMinorUnits(),
		Currency:              item.CurrencyCode,
	})
	if err != nil {
		failure := failureFor(item, err)
		s.logg.Warn(s.logg.WithFields(itemCtx, map[string]any{
			"kind":  string(failure.Kind),
			"error": err.Error(),
		}), "checkout item failed")
		acc.failures = append(acc.failures, failure)
		return acc
	}

	orderCtx := s.logg.WithOrderID(itemCtx, order.ID)
	confirmed := true
	if err := s.remote.ConfirmPayment(orderCtx, order.ID); err != nil {
		confirmed = false
		s.logg.Warn(s.logg.WithField(orderCtx, "error", err.Error()), "payment confirmation failed")
	}

	local := s.localOrder(item, order)
	if err := s.bookkeep(context.WithoutCancel(orderCtx), item, local, confirmed); err != nil {
		s.logg.Error(orderCtx, "checkout bookkeeping incomplete", err)
		if s.metrics != nil {
			s.metrics.IncBookkeepingError()
		}
	}
	acc.orders = append(acc.orders, local)
	return acc
}

// bookkeep attempts every local write even when an earlier one fails.
func (s *service) bookkeep(ctx context.Context, item models.CartLineItem, order models.LocalOrder, confirmed bool) error {
	var errs error
	if err := s.orders.Put(ctx, order); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cache order: %w", err))
	}
	if err := s.items.RemoveByID(ctx, item.ItemID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("remove cart item: %w", err))
	}
	_, err := s.payments.Append(ctx, models.LocalPayment{
		OrderID:     order.RemoteOrderID,
		ActionLabel: PaymentLabel(s.paymentMethod, order.RemoteOrderID),
		Confirmed:   confirmed,
		RecordedAt:  s.now().UnixMilli(),
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("append payment history: %w", err))
	}
	return errs
}

func (s *service) localOrder(item models.CartLineItem, order *marketplace.Order) models.LocalOrder {
	local := models.LocalOrder{
		RemoteOrderID:   order.ID,
		ListingID:       item.ProductID,
		TotalMinorUnits: item.TotalPriceMinorUnits(),
		CurrencyCode:    item.CurrencyCode,
		Status:          order.Status,
		CreatedAt:       s.now().UnixMilli(),
	}
	if order.TotalAmountMinorUnits > 0 {
		local.TotalMinorUnits = order.TotalAmountMinorUnits
	}
	if order.Currency != "" {
		local.CurrencyCode = order.Currency
	}
	if local.Status == "" {
		local.Status = "created"
	}
	return local
}

func (s *service) record(outcome enums.CheckoutOutcome, failures []ItemFailure) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncOutcome(outcome.String())
	for _, failure := range failures {
		s.metrics.IncItemFailure(string(failure.Kind))
	}
}

// PaymentLabel renders the history label, e.g. "Card ending 4f2a".
func PaymentLabel(method, orderID string) string {
	ref := orderID
	if len(ref) > 4 {
		ref = ref[len(ref)-4:]
	}
	return fmt.Sprintf("%s ending %s", method, ref)
}

// FailureSummary is the user-facing message stored after lines fail to order.
func FailureSummary(failed int) string {
	if failed == 1 {
		return "1 item could not be ordered"
	}
	return fmt.Sprintf("%d items could not be ordered", failed)
}

func failureFor(item models.CartLineItem, err error) ItemFailure {
	failure := ItemFailure{ItemID: item.ItemID, Title: item.Title, Kind: pkgerrors.CodeUnknown, Message: unknownMessage}
	typed := pkgerrors.As(err)
	if typed == nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			failure.Message = msg
		}
		return failure
	}

	switch typed.Code() {
	case pkgerrors.CodeNetwork, pkgerrors.CodeRemoteRejection:
		failure.Kind = typed.Code()
	}
	if msg := typed.Message(); msg != "" {
		failure.Message = msg
	}
	return failure
}

func cancelled(items []models.CartLineItem) []ItemFailure {
	out := make([]ItemFailure, 0, len(items))
	for _, item := range items {
		out = append(out, ItemFailure{
			ItemID:  item.ItemID,
			Title:   item.Title,
			Kind:    pkgerrors.CodeUnknown,
			Message: cancelledMessage,
		})
	}
	return out
}
