package web

// errors.go turns errors into JSON responses.
//
// The flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is wrapped by core.NewUserError with a user-facing message and code
//  4. The code picks the HTTP status
//  5. Technical error is logged with the request id for correlation

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/pgbulk/internal/core"
	"github.com/JonMunkholm/pgbulk/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form. Errors without a
// specific message are logged at error level whatever their status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	ue := core.NewUserError(err)
	status := statusForCode(ue.User.Code)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", ue.Technical.Error(),
		"code", ue.User.Code,
	}
	if status >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   ue.Error(),
		Message: ue.User.Message,
		Action:  ue.User.Action,
		Code:    ue.User.Code,
	})
}

// statusForCode maps a MapError code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "TBL002":
		return http.StatusNotFound
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "DB001", "DB002", "DB003":
		return http.StatusConflict
	case "LOAD002", "DB004", "DB005", "TX003":
		return http.StatusServiceUnavailable
	case "LOAD005", "DB006":
		return http.StatusGatewayTimeout
	}

	switch {
	case strings.HasPrefix(code, "VAL"), strings.HasPrefix(code, "FILE"):
		return http.StatusBadRequest
	case code == "XFER001", code == "XFER002", code == "DB008", code == "DB009":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
