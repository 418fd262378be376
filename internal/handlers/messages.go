package handlers

import (
	"errors"
	"net/http"

	"github.com/topup/upsell/internal/catalog"
	"github.com/topup/upsell/internal/services"
)

const (
	inProgressMessage = "Seu pagamento já está sendo gerado. Aguarde."
	genericMessage    = "Não foi possível gerar o pagamento. Tente novamente."
)

// getFailureMessage maps a submit error to the advisory shown on the page
// and the status the page is served with
func getFailureMessage(text catalog.Copy, err error) (string, int) {
	switch {
	case errors.Is(err, services.ErrNothingSelected):
		return text.NothingSelected, http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrSubmitInProgress):
		return inProgressMessage, http.StatusConflict
	case errors.Is(err, services.ErrCheckoutTimeout):
		return text.Timeout, http.StatusGatewayTimeout
	case errors.Is(err, services.ErrCheckoutRejected), errors.Is(err, services.ErrMissingTransactionID):
		return text.Rejected, http.StatusBadGateway
	case errors.Is(err, services.ErrCheckoutUnavailable):
		return text.Unavailable, http.StatusBadGateway
	default:
		return genericMessage, http.StatusInternalServerError
	}
}
