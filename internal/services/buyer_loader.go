package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/topup/upsell/internal/models"
)

// LoadBuyerContext reads the buyer details left by the checkout step. It
// never fails: a missing, unreadable or malformed value yields the empty
// context and a warning.
func LoadBuyerContext(ctx context.Context, storage Storage, logger *zap.Logger) models.BuyerContext {
	raw, ok, err := storage.Get(ctx, models.CheckoutDataKey)
	if err != nil {
		logger.Warn("checkout data unavailable, continuing without buyer details", zap.Error(err))
		return models.BuyerContext{}
	}
	if !ok {
		return models.BuyerContext{}
	}

	buyer, err := models.ParseBuyerContext(raw)
	if err != nil {
		logger.Warn("checkout data is malformed, continuing without buyer details",
			zap.Error(err),
			zap.Int("bytes", len(raw)),
		)
		return models.BuyerContext{}
	}
	return buyer
}
