package common

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
)

// ErrInvalidPayload is returned when the request body cannot be decoded.
var ErrInvalidPayload = errors.New("invalid payload")

// DecodeAndValidate decodes the JSON body into dst and runs struct validation.
// On failure the response has already been written and the error is returned
// so the handler can stop.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", ErrInvalidPayload.Error(), nil)
		return ErrInvalidPayload
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", validationErrorsToMap(err))
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
