package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"memberpay/internal/engine/checkout"
	"memberpay/internal/engine/payments"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/platform/repositories"
)

type CheckoutHandler struct {
	checkout *checkout.Service
}

func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if !decode(w, r, &req) {
		return
	}

	session, err := h.checkout.Start(r.Context(), req)
	switch {
	case err == nil:
		apierrors.WriteJSON(w, http.StatusOK, session)
	case errors.Is(err, checkout.ErrUnsupportedProvider):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeUnsupported, err.Error(), nil)
	case errors.Is(err, repositories.ErrProfileNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Profile not found", nil)
	case errors.Is(err, payments.ErrProviderUnreachable):
		log.Warn().Err(err).Str("provider", req.Provider).Msg("checkout provider call failed")
		apierrors.WriteError(w, http.StatusBadGateway, apierrors.ErrCodeProviderFailure, "Payment provider unavailable", nil)
	default:
		log.Error().Err(err).Msg("checkout failed")
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Checkout failed", nil)
	}
}
