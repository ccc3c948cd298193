package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "memberpay/internal/api/context"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/pkg/validator"
)

const maxBodyBytes = 1 << 20

func param(r *http.Request, name string) string {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return ps.ByName(name)
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself when it returns false.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Invalid request body", err.Error())
		return false
	}

	if err := validator.Struct(dst); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Validation failed", verr.Fields)
			return false
		}
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, err.Error(), nil)
		return false
	}
	return true
}
