package domain

import (
	"fmt"
	"net/http"
)

// DownloadError is the reason attached to a failed or cancelled download
type DownloadError string

const (
	ErrorNone                DownloadError = "none"
	ErrorCancelled           DownloadError = "cancelled"
	ErrorCannotResume        DownloadError = "cannot_resume"
	ErrorDeviceNotFound      DownloadError = "device_not_found"
	ErrorFileAlreadyExists   DownloadError = "file_already_exists"
	ErrorFileError           DownloadError = "file_error"
	ErrorHTTPDataError       DownloadError = "http_data_error"
	ErrorInsufficientSpace   DownloadError = "insufficient_space"
	ErrorTooManyRedirects    DownloadError = "too_many_redirects"
	ErrorUnhandledHTTPCode   DownloadError = "unhandled_http_code"
	ErrorConnectionTimedOut  DownloadError = "connection_timed_out"
	ErrorHTTPNotFound        DownloadError = "http_not_found"
	ErrorNoNetworkConnection DownloadError = "no_network_connection"
	ErrorUnknown             DownloadError = "unknown"
)

var errorDescriptions = map[DownloadError]string{
	ErrorCancelled:           "Cancelled",
	ErrorCannotResume:        "Cannot resume",
	ErrorDeviceNotFound:      "Storage not found",
	ErrorFileAlreadyExists:   "File already exists",
	ErrorFileError:           "Unknown file error",
	ErrorHTTPDataError:       "HTTP error",
	ErrorInsufficientSpace:   "Insufficient space",
	ErrorTooManyRedirects:    "Too many redirects",
	ErrorUnhandledHTTPCode:   "Unhandled HTTP code",
	ErrorConnectionTimedOut:  "Connection timed out",
	ErrorHTTPNotFound:        "File not found on server",
	ErrorNoNetworkConnection: "No network connection",
	ErrorUnknown:             "Unknown error",
}

// Description returns a human readable reason, empty for ErrorNone
func (e DownloadError) Description() string {
	return errorDescriptions[e]
}

// ErrorFromHTTPStatus maps an unexpected HTTP response code to a download error
func ErrorFromHTTPStatus(code int) DownloadError {
	switch {
	case code == http.StatusNotFound:
		return ErrorHTTPNotFound
	case code == http.StatusRequestedRangeNotSatisfiable:
		return ErrorCannotResume
	case code >= 300 && code < 400:
		return ErrorTooManyRedirects
	case code >= 500:
		return ErrorHTTPDataError
	default:
		return ErrorUnhandledHTTPCode
	}
}

var statusLabels = map[DownloadStatus]string{
	StatusNone:        "Pending",
	StatusAdded:       "Pending",
	StatusQueued:      "Pending",
	StatusDownloading: "Running",
	StatusPaused:      "Paused",
	StatusCompleted:   "Complete",
	StatusCancelled:   "Cancelled",
	StatusFailed:      "Failed",
	StatusRemoved:     "Removed",
	StatusDeleted:     "Deleted",
}

// ReadableState returns the state label shown to users, followed by the failure
// reason when one is known. A missing-file failure names the URL that was tried.
func ReadableState(status DownloadStatus, err DownloadError, url string) string {
	label, ok := statusLabels[status]
	if !ok {
		label = string(status)
	}
	if !status.IsTerminal() || status == StatusCompleted || err == ErrorNone || err == "" {
		return label
	}
	reason := err.Description()
	if reason == "" {
		reason = ErrorUnknown.Description()
	}
	if err == ErrorHTTPNotFound && url != "" {
		return fmt.Sprintf("%s: %s (%s)", label, reason, url)
	}
	return fmt.Sprintf("%s: %s", label, reason)
}
