package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

// internalErrorMessage is all a caller learns about a server-side failure.
const internalErrorMessage = "Internal error"

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFailure writes a soft failure: HTTP 200 with success=false.
func writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, model.Result{Success: false, Error: message})
}

// writeServiceError maps a service error to a response. Input errors are soft
// failures; anything else is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case service.IsInputError(err):
		writeFailure(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, model.Result{Success: false, Error: internalErrorMessage})
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure. An empty body leaves v untouched.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeBadRequest reports a body that could not be decoded.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, model.Result{Success: false, Error: "Invalid request body: " + err.Error()})
}

// flexBool is a JSON value read by truthiness: false, null, 0, "" and an
// absent field are false, everything else is true.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0,
		bytes.Equal(data, []byte("false")),
		bytes.Equal(data, []byte("null")),
		bytes.Equal(data, []byte(`""`)):
		*b = false
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*b = f != 0
	default:
		*b = true
	}
	return nil
}

// flexString accepts a JSON string, number or null. Other values decode to
// the empty string.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case 'n', 't', 'f', '{', '[':
	default:
		*s = flexString(data)
	}
	return nil
}
