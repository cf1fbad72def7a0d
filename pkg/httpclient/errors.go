package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/ecobazaar/storefront/pkg/errors"
)

// downstreamError covers the two error body shapes seen from dependencies:
// {"error":{"code","message"}} and {"error":"message"}.
type downstreamError struct {
	Error json.RawMessage `json:"error"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(bodyBytes)
	var downstream downstreamError
	if json.Unmarshal(bodyBytes, &downstream) == nil && len(downstream.Error) > 0 {
		var structured structuredError
		var plain string
		switch {
		case json.Unmarshal(downstream.Error, &structured) == nil && structured.Message != "":
			code, message = structured.Code, structured.Message
		case json.Unmarshal(downstream.Error, &plain) == nil:
			message = plain
		}
	}

	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName+" resource", message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.Unavailable(serviceName, fmt.Errorf("%s", message))
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
