package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/matenet/backend/internal/common"
)

const maxJSONBody = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// classify maps an error onto an HTTP status and error kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrSelfRequest):
		return http.StatusBadRequest, "SelfRequestError"
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, "ValidationError"
	case errors.Is(err, common.ErrInvalidSignature), errors.Is(err, common.ErrNonceInvalid):
		return http.StatusUnauthorized, "SignatureError"
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "AuthError"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "NotFoundError"
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, "ConflictError"
	case errors.Is(err, common.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "PayloadTooLargeError"
	}
	return http.StatusInternalServerError, "InternalError"
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, ErrorBody{Error: kind, Message: err.Error()})
}

// decodeJSON reads a JSON body into dst; malformed input is a validation
// error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return common.ErrPayloadTooLarge
		case errors.Is(err, io.EOF):
			return errors.Join(common.ErrValidation, errors.New("request body is empty"))
		}
		return errors.Join(common.ErrValidation, err)
	}
	return nil
}
