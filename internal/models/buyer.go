package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedBuyerContext is returned when stored checkout data is not valid JSON
var ErrMalformedBuyerContext = errors.New("stored buyer context is malformed")

// BuyerContext identifies the payer, captured by the primary checkout step
type BuyerContext struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"max=32"`
}

// ParseBuyerContext decodes stored checkout data. Missing fields, or fields
// of the wrong type, default to the empty string.
func ParseBuyerContext(raw []byte) (BuyerContext, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return BuyerContext{}, fmt.Errorf("%w: %v", ErrMalformedBuyerContext, err)
	}

	return BuyerContext{
		Name:  stringField(fields, "name"),
		Email: stringField(fields, "email"),
		Phone: stringField(fields, "phone"),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
