package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/middleware"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindInsufficientBalance, apperr.KindRewardInactive:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders a service error. Storage failures are logged and
// reported without their cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.RequestID(r.Context()), "kind", kind.String(), "error", err)
		writeJSON(w, status, errorBody{Error: kind.String(), Message: http.StatusText(status)})
		return
	}

	msg := kind.String()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Msg != "" {
		msg = ae.Msg
	}
	writeJSON(w, status, errorBody{Error: kind.String(), Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: apperr.KindInvalid.String(), Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}

// callerFrom returns the authenticated caller, writing 401 when the
// request was not routed through RequireAuth.
func callerFrom(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: apperr.KindUnauthenticated.String(), Message: "authentication required"})
	}
	return c, ok
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathInt(r, "id")
}

func parsePathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// pathIDs parses each named path value, writing 400 on the first bad one.
func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]int64, bool) {
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := parsePathInt(r, name)
		if err != nil {
			badRequest(w, "invalid "+name)
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// emptyIfNil keeps list endpoints returning [] instead of null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
