package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/jobs"
	"sector-registry/sectorhub/internal/logging"

	"github.com/go-playground/validator/v10"
)

const maxUploadBytes = 10 << 20

var validate = validator.New()

// respondServiceError maps service and job errors onto the response envelope
func respondServiceError(w http.ResponseWriter, initTime time.Time, err error) {
	if errors.Is(err, jobs.ErrRunInProgress) {
		common.RespondError(w, initTime, err, "", http.StatusConflict)
		return
	}
	common.RespondMappingError(w, initTime, err)
}

// decodeBody reads a JSON body into dst and runs struct validation
func decodeBody(r *http.Request, dst any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return constants.NewValidationError(constants.ErrCodeInvalidRequest, "invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return constants.NewValidationError(constants.ErrCodeInvalidRequest, "%s", err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, constants.NewValidationError(constants.ErrCodeInvalidFilter, "%s must be an integer", name)
	}
	return n, nil
}

// parseDay accepts 2006-01-02 in loc or a full RFC3339 timestamp
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, constants.NewValidationError(constants.ErrCodeInvalidRequest, "invalid date %q", raw)
	}
	return t, nil
}

func logPartial(op string, count int64, err error) {
	if count > 0 {
		logging.Warn("Partial "+op, "applied", count, "error", err.Error())
	}
}
