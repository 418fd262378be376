package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSessionType tags records written by upsell pages
const PaymentSessionType = "upsell"

// Storage keys shared with the sibling pages
const (
	CheckoutDataKey = "checkoutData"
	PixCheckoutKey  = "pixCheckout"
)

// Record errors
var (
	ErrNoItems              = errors.New("payment session must contain at least one item")
	ErrTotalMismatch        = errors.New("payment session total does not match its items")
	ErrEmptyTransactionID   = errors.New("transaction id cannot be empty")
	ErrExtraOverridesField  = errors.New("extra field overrides a record field")
	ErrMalformedPaymentData = errors.New("stored payment session is malformed")
)

// Charge is what the checkout endpoint returned for a created payment
type Charge struct {
	TransactionID string
	Brcode        string
	QRBase64      string
}

// PaymentSessionRecord is the handoff consumed by the payment display page
type PaymentSessionRecord struct {
	Type          string
	Items         []OfferItem
	Total         decimal.Decimal
	TransactionID string
	Brcode        string
	QRBase64      string
	CreatedAt     time.Time
	Payer         BuyerContext
	// Extras are variant-specific fields flattened into the top-level object
	Extras map[string]any
}

// NewPaymentSessionRecord builds a record, enforcing that the total equals
// the sum of the listed items
func NewPaymentSessionRecord(items []OfferItem, total decimal.Decimal, charge Charge, payer BuyerContext, createdAt time.Time) (*PaymentSessionRecord, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if !SumPrices(items).Equal(total) {
		return nil, fmt.Errorf("%w: items sum to %s, total is %s", ErrTotalMismatch, SumPrices(items), total)
	}
	if charge.TransactionID == "" {
		return nil, ErrEmptyTransactionID
	}

	return &PaymentSessionRecord{
		Type:          PaymentSessionType,
		Items:         items,
		Total:         total,
		TransactionID: charge.TransactionID,
		Brcode:        charge.Brcode,
		QRBase64:      charge.QRBase64,
		CreatedAt:     createdAt,
		Payer:         payer,
	}, nil
}

// WithExtras attaches variant-specific fields. Names already used by the
// record are rejected.
func (r *PaymentSessionRecord) WithExtras(extras map[string]any) error {
	for k := range extras {
		if _, reserved := recordFields[k]; reserved {
			return fmt.Errorf("%w: %s", ErrExtraOverridesField, k)
		}
	}
	r.Extras = extras
	return nil
}

var recordFields = map[string]struct{}{
	"type": {}, "items": {}, "total": {}, "transactionId": {}, "brcode": {},
	"qrBase64": {}, "createdAt": {}, "payer": {},
}

type paymentSessionJSON struct {
	Type          string       `json:"type"`
	Items         []OfferItem  `json:"items"`
	Total         json.Number  `json:"total"`
	TransactionID string       `json:"transactionId"`
	Brcode        string       `json:"brcode"`
	QRBase64      string       `json:"qrBase64"`
	CreatedAt     int64        `json:"createdAt"`
	Payer         BuyerContext `json:"payer"`
}

// MarshalJSON flattens extras next to the record fields; createdAt is epoch milliseconds
func (r PaymentSessionRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(paymentSessionJSON{
		Type:          r.Type,
		Items:         r.Items,
		Total:         json.Number(r.Total.String()),
		TransactionID: r.TransactionID,
		Brcode:        r.Brcode,
		QRBase64:      r.QRBase64,
		CreatedAt:     r.CreatedAt.UnixMilli(),
		Payer:         r.Payer,
	})
	if err != nil || len(r.Extras) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(recordFields)+len(r.Extras))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extras {
		if _, reserved := recordFields[k]; reserved {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extra %s: %w", k, err)
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// ParsePaymentSessionRecord decodes a stored record, keeping unknown fields as extras
func ParsePaymentSessionRecord(raw []byte) (*PaymentSessionRecord, error) {
	var base paymentSessionJSON
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPaymentData, err)
	}
	total, err := decimal.NewFromString(base.Total.String())
	if err != nil {
		return nil, fmt.Errorf("%w: total: %v", ErrMalformedPaymentData, err)
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPaymentData, err)
	}
	var extras map[string]any
	for k, v := range all {
		if _, reserved := recordFields[k]; reserved {
			continue
		}
		if extras == nil {
			extras = make(map[string]any)
		}
		extras[k] = v
	}

	return &PaymentSessionRecord{
		Type:          base.Type,
		Items:         base.Items,
		Total:         total,
		TransactionID: base.TransactionID,
		Brcode:        base.Brcode,
		QRBase64:      base.QRBase64,
		CreatedAt:     time.UnixMilli(base.CreatedAt),
		Payer:         base.Payer,
		Extras:        extras,
	}, nil
}
