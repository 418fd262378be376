package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/topup/upsell/internal/models"
)

// Session data errors
var (
	ErrInvalidCheckoutData = errors.New("checkout data is invalid")
	ErrNoPaymentSession    = errors.New("no payment session stored")
)

// SessionDataService exposes the storage handoff used by the sibling pages:
// the checkout step writes buyer details, the payment page reads the record
type SessionDataService interface {
	SaveCheckoutData(ctx context.Context, storage Storage, buyer models.BuyerContext) error
	PaymentSession(ctx context.Context, storage Storage) (*models.PaymentSessionRecord, error)
}

// SessionDataServiceImpl implements SessionDataService
type SessionDataServiceImpl struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSessionDataService creates a new session data service
func NewSessionDataService(logger *zap.Logger) *SessionDataServiceImpl {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &SessionDataServiceImpl{
		validate: validate,
		logger:   logger,
	}
}

// FieldError describes one rejected buyer field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError carries the rejected fields and matches ErrInvalidCheckoutData
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %d field(s) rejected", ErrInvalidCheckoutData, len(e.Fields))
}

// Is makes errors.Is(err, ErrInvalidCheckoutData) hold
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidCheckoutData
}

// SaveCheckoutData validates and stores the buyer details
func (s *SessionDataServiceImpl) SaveCheckoutData(ctx context.Context, storage Storage, buyer models.BuyerContext) error {
	if err := s.validate.Struct(buyer); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %v", ErrInvalidCheckoutData, err)
		}
		out := &ValidationError{}
		for _, fe := range ve {
			out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return out
	}

	raw, err := json.Marshal(buyer)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout data: %w", err)
	}
	if err := storage.Set(ctx, models.CheckoutDataKey, raw); err != nil {
		return fmt.Errorf("failed to store checkout data: %w", err)
	}

	s.logger.Debug("checkout data stored", zap.Bool("has_email", buyer.Email != ""))
	return nil
}

// PaymentSession returns the stored payment session record
func (s *SessionDataServiceImpl) PaymentSession(ctx context.Context, storage Storage) (*models.PaymentSessionRecord, error) {
	raw, ok, err := storage.Get(ctx, models.PixCheckoutKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}
	if !ok {
		return nil, ErrNoPaymentSession
	}
	return models.ParsePaymentSessionRecord(raw)
}
