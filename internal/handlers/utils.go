package handlers

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/damacus/r2-dashboard/internal/browser"
	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
	Failed  []FailedItem `json:"failed,omitempty"`
}

// FailedItem is one key a batch operation could not process
type FailedItem struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// statusFor maps an error from the browser package onto an HTTP status
func statusFor(err error) int {
	var (
		validationErr *browser.ValidationError
		notFoundErr   *browser.NotFoundError
		httpErr       *echo.HTTPError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &httpErr):
		return httpErr.Code
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Client errors carry their own message;
// server errors are prefixed with action, e.g. "Upload failed: ...".
func respondError(c echo.Context, action string, err error) error {
	status := statusFor(err)
	resp := ErrorResponse{Message: errorMessage(err)}

	if status >= http.StatusInternalServerError {
		resp.Message = action + " failed: " + resp.Message
		log.Printf("%s failed: %v", action, err)
	}

	var batchErr *browser.BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failed {
			resp.Failed = append(resp.Failed, FailedItem{Key: f.Key, Error: f.Err.Error()})
		}
	}

	var storeErr *services.StoreError
	if errors.As(err, &storeErr) {
		resp.Code = storeErr.Code
	}

	return c.JSON(status, resp)
}

func errorMessage(err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}

// wildcardParam returns the "*" path parameter decoded exactly once. echo
// matches on URL.RawPath when the request carries one and leaves the value
// escaped; otherwise it was decoded along with URL.Path already.
func wildcardParam(c echo.Context) string {
	raw := c.Param("*")
	if c.Request().URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
