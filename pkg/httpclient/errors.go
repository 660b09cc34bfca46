package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// errorEnvelope is the {"error":{...}} body written by httputil.WriteError.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// turns it into an error. Structured error envelopes keep their code;
// anything else is reported with the raw body. Errors a caller cannot fix
// (5xx, 401, 403, 429) wrap ErrServiceUnavail.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(body)
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}
	msg := fmt.Sprintf("%s: %s", serviceName, message)

	switch status := resp.StatusCode; {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName+" resource", message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		if code == "" {
			code = "INVALID_INPUT"
		}
		return apperrors.Validation(code, msg)
	case status == http.StatusConflict:
		if code == "" {
			code = "CONFLICT"
		}
		return apperrors.Conflict(code, msg)
	case status >= http.StatusInternalServerError,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests:
		return &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: fmt.Sprintf("%s returned status %d", serviceName, status),
			Status:  http.StatusServiceUnavailable,
			Err:     fmt.Errorf("%s: %w", msg, apperrors.ErrServiceUnavail),
		}
	default:
		return fmt.Errorf("%s returned unexpected status %d: %s", serviceName, status, message)
	}
}
