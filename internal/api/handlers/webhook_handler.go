package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"memberpay/internal/engine/payments"
	"memberpay/internal/engine/providers"
	"memberpay/internal/engine/reconcile"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/platform/secrets"
)

const paystackSignatureHeader = "x-paystack-signature"

type WebhookHandler struct {
	reconciler      *reconcile.Service
	secrets         secrets.Provider
	secretName      string
	verifySignature bool
}

func NewWebhookHandler(reconciler *reconcile.Service, sp secrets.Provider, secretName string, verifySignature bool) *WebhookHandler {
	return &WebhookHandler{
		reconciler:      reconciler,
		secrets:         sp,
		secretName:      secretName,
		verifySignature: verifySignature,
	}
}

// Paystack acknowledges every parseable delivery with 200, including
// duplicates and deliveries whose application failed; only a malformed body
// gets a 400 so Paystack stops retrying nothing but garbage.
func (h *WebhookHandler) Paystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeMalformedEvent, "Could not read body", nil)
		return
	}

	if h.verifySignature {
		secret, err := h.secrets.GetSecret(r.Context(), h.secretName)
		if err != nil {
			log.Error().Err(err).Msg("paystack secret unavailable for signature check")
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Signature check unavailable", nil)
			return
		}
		if !providers.VerifyPaystackSignature(secret, body, r.Header.Get(paystackSignatureHeader)) {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeInvalidSignature, "Invalid signature", nil)
			return
		}
	}

	res, err := h.reconciler.HandleWebhook(r.Context(), body)
	if errors.Is(err, payments.ErrMalformedEvent) {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeMalformedEvent, err.Error(), nil)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(res.State),
	})
}
