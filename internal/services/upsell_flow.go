package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/topup/upsell/internal/catalog"
	"github.com/topup/upsell/internal/models"
	"github.com/topup/upsell/internal/timer"
)

// Flow errors
var (
	ErrNothingSelected  = errors.New("no offer selected")
	ErrSubmitInProgress = errors.New("a payment is already being created")
	ErrNotMounted       = errors.New("upsell page is not mounted")
	ErrSessionWrite     = errors.New("failed to store the payment session")
)

// Navigator moves the buyer to another route
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(target string)

// Navigate implements Navigator
func (f NavigatorFunc) Navigate(target string) { f(target) }

// FlowDependencies holds the collaborators of an UpsellFlow
type FlowDependencies struct {
	Storage   Storage
	Client    CheckoutClient
	Navigator Navigator
	Scheduler timer.Scheduler
	Logger    *zap.Logger

	RedirectDelay time.Duration
	PaymentRoute  string

	// CountdownOptions configure the page countdown, e.g. a tick callback
	CountdownOptions []timer.Option

	// Now and NewIdempotencyKey default to time.Now and uuid.NewString
	Now               func() time.Time
	NewIdempotencyKey func() string
}

// UpsellFlow is one mounted upsell page: selection, countdown, buyer
// context and payment initiation
type UpsellFlow struct {
	variant *catalog.Variant
	deps    FlowDependencies

	mu         sync.Mutex
	selection  *models.Selection
	buyer      models.BuyerContext
	countdown  *timer.Countdown
	mounted    bool
	submitting bool
	pending    []timer.Task
}

// NewUpsellFlow creates an unmounted flow for variant
func NewUpsellFlow(variant *catalog.Variant, deps FlowDependencies) *UpsellFlow {
	if deps.Scheduler == nil {
		deps.Scheduler = timer.AfterFuncScheduler{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewIdempotencyKey == nil {
		deps.NewIdempotencyKey = uuid.NewString
	}
	if deps.PaymentRoute == "" {
		deps.PaymentRoute = "/buy"
	}
	return &UpsellFlow{variant: variant, deps: deps}
}

// Mount loads the buyer context, initializes the selection and starts the
// countdown if the variant has one. A flow is mounted at most once.
func (f *UpsellFlow) Mount(ctx context.Context) {
	f.mu.Lock()
	if f.mounted || f.selection != nil {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	buyer := LoadBuyerContext(ctx, f.deps.Storage, f.deps.Logger)

	var countdown *timer.Countdown
	if f.variant.HasCountdown() {
		opts := append([]timer.Option{timer.WithUrgency(f.variant.UrgencySeconds)}, f.deps.CountdownOptions...)
		countdown = timer.NewCountdown(opts...)
		countdown.Start(f.variant.CountdownSeconds)
	}

	f.mu.Lock()
	f.buyer = buyer
	f.selection = f.variant.NewSelection()
	f.countdown = countdown
	f.mounted = true
	f.mu.Unlock()
}

// Unmount stops the countdown and cancels any scheduled navigation
func (f *UpsellFlow) Unmount() {
	f.mu.Lock()
	f.mounted = false
	pending := f.pending
	f.pending = nil
	countdown := f.countdown
	f.mu.Unlock()

	for _, task := range pending {
		task.Cancel()
	}
	if countdown != nil {
		countdown.Stop()
	}
}

// Restore selects ids carried over from a previous render. Unknown ids and
// locked pages are unaffected.
func (f *UpsellFlow) Restore(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection == nil {
		return
	}
	for _, id := range ids {
		if !f.selection.Contains(id) {
			f.selection.Toggle(id)
		}
	}
}

// Toggle flips id in the selection
func (f *UpsellFlow) Toggle(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection != nil {
		f.selection.Toggle(id)
	}
}

// SelectedIDs returns the selection in catalog order
func (f *UpsellFlow) SelectedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection == nil {
		return nil
	}
	return f.selection.IDs()
}

// Total is the exact sum of the selected prices
func (f *UpsellFlow) Total() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection == nil {
		return decimal.Zero
	}
	return f.variant.Catalog().Total(f.selection)
}

// Buyer returns the context loaded on mount
func (f *UpsellFlow) Buyer() models.BuyerContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buyer
}

// Countdown returns the countdown state and whether the page has one
func (f *UpsellFlow) Countdown() (timer.State, bool) {
	f.mu.Lock()
	countdown := f.countdown
	f.mu.Unlock()
	if countdown == nil {
		return timer.State{}, false
	}
	return countdown.State(), true
}

// Submit creates a charge for the current selection, stores the payment
// session record and schedules navigation to the payment route. On any
// failure nothing is stored and nothing is scheduled.
func (f *UpsellFlow) Submit(ctx context.Context) (*models.PaymentSessionRecord, error) {
	f.mu.Lock()
	if !f.mounted {
		f.mu.Unlock()
		return nil, ErrNotMounted
	}
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	items := f.variant.Catalog().Selected(f.selection)
	buyer := f.buyer
	f.submitting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	total := models.SumPrices(items)
	if !total.IsPositive() {
		return nil, ErrNothingSelected
	}

	now := f.deps.Now()
	orderID := strconv.FormatInt(now.UnixMilli(), 10)
	req := &ChargeRequest{
		Amount:      models.ToCents(total),
		OrderID:     orderID,
		Description: fmt.Sprintf("%s - Pedido #%s", f.variant.DescriptionPrefix, orderID),
		Payer:       buyer,
	}

	logger := f.deps.Logger.With(zap.String("variant", f.variant.Slug), zap.String("order_id", orderID))

	resp, err := f.deps.Client.CreateCharge(ctx, req, f.deps.NewIdempotencyKey())
	if err != nil {
		logger.Warn("charge creation failed", zap.Error(err))
		return nil, err
	}
	if resp == nil || resp.ID == "" {
		return nil, ErrMissingTransactionID
	}

	record, err := models.NewPaymentSessionRecord(items, total, resp.Charge(), buyer, f.deps.Now())
	if err != nil {
		return nil, err
	}
	if err := record.WithExtras(f.variant.Extras(total)); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionWrite, err)
	}
	if err := f.deps.Storage.Set(ctx, models.PixCheckoutKey, raw); err != nil {
		logger.Error("payment session not stored", zap.Error(err), zap.String("transaction_id", record.TransactionID))
		return nil, fmt.Errorf("%w: %v", ErrSessionWrite, err)
	}

	logger.Info("payment session stored",
		zap.String("transaction_id", record.TransactionID),
		zap.Int64("amount_cents", req.Amount),
		zap.Int("items", len(items)),
	)

	f.scheduleNavigation()
	return record, nil
}

func (f *UpsellFlow) scheduleNavigation() {
	f.mu.Lock()
	if !f.mounted || f.deps.Navigator == nil {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	target := f.deps.PaymentRoute
	task := f.deps.Scheduler.Schedule(f.deps.RedirectDelay, func() {
		f.deps.Navigator.Navigate(target)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.mounted {
		task.Cancel()
		return
	}
	f.pending = append(f.pending, task)
}
