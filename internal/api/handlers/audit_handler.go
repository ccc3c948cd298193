package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/models"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

type AuditHandler struct {
	recorder *audit.Recorder
}

func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// List returns the reconciliation history of one owner, newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := param(r, "owner_id")

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		if n > maxAuditLimit {
			n = maxAuditLimit
		}
		limit = n
	}

	entries, err := h.recorder.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to list reconciliation entries")
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to list entries", nil)
		return
	}
	if entries == nil {
		entries = []*models.ReconciliationEntry{}
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"owner_id": ownerID,
		"entries":  entries,
	})
}
