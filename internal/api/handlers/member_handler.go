package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"memberpay/internal/engine/members"
	"memberpay/internal/engine/reconcile"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/platform/repositories"
)

type MemberHandler struct {
	members    *members.Service
	reconciler *reconcile.Service
}

func NewMemberHandler(m *members.Service, reconciler *reconcile.Service) *MemberHandler {
	return &MemberHandler{members: m, reconciler: reconciler}
}

func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req members.RegisterInput
	if !decode(w, r, &req) {
		return
	}

	profile, created, err := h.members.Register(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("owner_id", req.OwnerID).Msg("failed to register member")
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to register member", nil)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	apierrors.WriteJSON(w, status, profile)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.members.Get(r.Context(), param(r, "owner_id"))
	if err != nil {
		writeProfileError(w, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, profile)
}

func (h *MemberHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req members.ContactInput
	if !decode(w, r, &req) {
		return
	}

	profile, err := h.members.SaveContact(r.Context(), param(r, "owner_id"), req)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, profile)
}

func (h *MemberHandler) PaymentCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.CheckOwner(r.Context(), param(r, "owner_id"))
	if err != nil {
		writeProfileError(w, err)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"signup_paid": res.Profile.SignupPaid,
		"outcome":     res.Outcome,
	})
}

func writeProfileError(w http.ResponseWriter, err error) {
	if errors.Is(err, repositories.ErrProfileNotFound) {
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Profile not found", nil)
		return
	}
	log.Error().Err(err).Msg("profile request failed")
	apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Internal error", nil)
}
