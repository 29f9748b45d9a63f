package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/models/dtos"
)

// RespondSuccess sends a standardized JSON success response.
func RespondSuccess(w http.ResponseWriter, initTime time.Time, message string, data any, statusCode ...int) {
	code := http.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	response := dtos.APIResponse{
		Status:       string(constants.APIStatusOk),
		Message:      message,
		ResponseTime: GetResponseTime(initTime),
		Data:         data,
	}

	writeJSON(w, code, response)
}

// RespondError sends a standardized JSON error response.
func RespondError(w http.ResponseWriter, initTime time.Time, err error, message string, statusCode ...int) {
	code := http.StatusInternalServerError
	if len(statusCode) > 0 {
		code = statusCode[0]
	}
	respondError(w, initTime, err, message, code, nil)
}

func respondError(w http.ResponseWriter, initTime time.Time, err error, message string, code int, data any) {
	msg := message
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}

	response := dtos.APIResponse{
		Status:       string(constants.APIStatusError),
		Message:      msg,
		ResponseTime: GetResponseTime(initTime),
		Data:         data,
	}

	var mErr *constants.MappingError
	if errors.As(err, &mErr) {
		response.Code = mErr.Code
	}

	writeJSON(w, code, response)
}

// RespondMappingError picks the status code from the error kind
func RespondMappingError(w http.ResponseWriter, initTime time.Time, err error) {
	RespondMappingErrorWithData(w, initTime, err, nil)
}

// RespondMappingErrorWithData is RespondMappingError carrying a partial result in data
func RespondMappingErrorWithData(w http.ResponseWriter, initTime time.Time, err error, data any) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", "error", err.Error())
		respondError(w, initTime, nil, constants.MsgInternalServerError, status, data)
		return
	}
	respondError(w, initTime, err, "", status, data)
}

// StatusForError maps error kinds onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, constants.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, constants.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, constants.ErrReference):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON marshals data and writes it to the HTTP response.
func writeJSON(w http.ResponseWriter, code int, body dtos.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("JSON encode failed", "error", err.Error())
	}
}
