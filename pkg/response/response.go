package response

import (
	"errors"
	"net/http"

	"orgadmin/pkg/apperror"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"` // apperror kind on failures
}

// Page wraps a list result with its paging metadata.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

var statusByKind = map[apperror.Kind]int{
	apperror.KindUnauthenticated: http.StatusUnauthorized,
	apperror.KindNotFound:        http.StatusNotFound,
	apperror.KindConflict:        http.StatusConflict,
	apperror.KindForbidden:       http.StatusForbidden,
	apperror.KindValidation:      http.StatusBadRequest,
	apperror.KindUnavailable:     http.StatusServiceUnavailable,
	apperror.KindInternal:        http.StatusInternalServerError,
}

// FromError maps a service failure to an error response. Untyped errors
// render as a generic internal error.
func FromError(err error) Response {
	kind := apperror.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := http.StatusText(status)
	var appErr *apperror.Error
	if errors.As(err, &appErr) && kind != apperror.KindInternal {
		msg = appErr.Message
	}
	res := Error(status, msg)
	res.Code = string(kind)
	return res
}
