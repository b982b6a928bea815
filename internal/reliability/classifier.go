// Package reliability classifies failures for clients. Nothing here retries on
// its own; Retryable only tells the user whether trying again can help.
package reliability

import (
	"context"
	"errors"
	"net/http"

	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/dialog"
	"github.com/antoniostano/coachroom/internal/discussion"
	"github.com/antoniostano/coachroom/internal/rooms"
)

// Classification is the client-facing shape of an error.
type Classification struct {
	Status    int
	Code      string
	Retryable bool
}

// Classify maps domain errors to an HTTP status, a stable code and a
// retry hint. Unknown errors are internal and not retryable.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Classification{Status: http.StatusOK}
	case errors.Is(err, capture.ErrPermissionDenied):
		return Classification{Status: http.StatusForbidden, Code: "permission_denied", Retryable: true}
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return Classification{Status: http.StatusServiceUnavailable, Code: "device_unavailable", Retryable: true}
	case errors.Is(err, capture.ErrConnectAborted):
		return Classification{Status: http.StatusConflict, Code: "connect_aborted", Retryable: true}
	case errors.Is(err, dialog.ErrSubmitInFlight):
		return Classification{Status: http.StatusConflict, Code: "submit_in_flight"}
	case errors.Is(err, dialog.ErrTopicRequired),
		errors.Is(err, dialog.ErrUnknownExpert),
		errors.Is(err, rooms.ErrInvalidRequest),
		errors.Is(err, discussion.ErrRoomIDRequired):
		return Classification{Status: http.StatusBadRequest, Code: "invalid_request"}
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Status: http.StatusGatewayTimeout, Code: "timeout", Retryable: true}
	case errors.Is(err, rooms.ErrRemoteService):
		return Classification{Status: http.StatusBadGateway, Code: "remote_service_error", Retryable: true}
	case errors.Is(err, context.Canceled):
		return Classification{Status: 499, Code: "canceled"}
	default:
		return Classification{Status: http.StatusInternalServerError, Code: "internal_error"}
	}
}

// RetryableStatus reports whether a response with this status is worth
// retrying by hand. Internal errors are not: they come from bugs, not load.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
