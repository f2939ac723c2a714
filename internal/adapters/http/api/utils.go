package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/steplens/steplens/internal/adapters/repository"
	"github.com/steplens/steplens/internal/app"
	"github.com/steplens/steplens/internal/domain/model"
)

// AccountHeader carries the authenticated tenant id. Authentication
// itself happens upstream; this engine trusts the header.
const AccountHeader = "X-Account-ID"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps engine error kinds onto HTTP statuses:
// NotFound 404, tracking disabled 409, invalid input 400, storage 503.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrFunnelNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, app.ErrTrackingDisabled):
		writeError(w, http.StatusConflict, "tracking_disabled", err)
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// accountID extracts the tenant id header; every business route is
// scoped to it.
func accountID(r *http.Request) (string, error) {
	id := r.Header.Get(AccountHeader)
	if id == "" {
		return "", ErrMissingTenant
	}
	return id, nil
}

// parseWindow reads optional from/to query parameters. Both absent
// yields nil so the service applies its default window; exactly one
// present is rejected. Values parse as RFC3339 or as a bare date.
func parseWindow(r *http.Request) (*model.TimeWindow, error) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from and to must be supplied together", ErrBadRequest)
	}
	start, err := parseTime(from)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid from: %v", ErrBadRequest, err)
	}
	end, err := parseTime(to)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid to: %v", ErrBadRequest, err)
	}
	return &model.TimeWindow{Start: start, End: end}, nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing %s", ErrBadRequest, name)
}

func badField(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
