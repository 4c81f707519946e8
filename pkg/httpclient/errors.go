package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/shopcraft/selection/pkg/errors"
)

// upstreamErrorBody is the structured error shape some upstream services
// return. Both key casings are accepted.
type upstreamErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	AltMsg  string `json:"Message"`
}

func (b upstreamErrorBody) text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.AltMsg != "":
		return b.AltMsg
	default:
		return b.Error
	}
}

// ParseResponseError reads the body of a non-2xx HTTP response from the given
// upstream service and translates it into an appropriate AppError. The
// response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	message := ""
	var body upstreamErrorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		message = body.text()
	}
	if message == "" {
		message = string(bodyBytes)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.InvalidInput(fmt.Sprintf("%s: %s", serviceName, message))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s: %s", serviceName, message))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s server error (%d): %s", serviceName, resp.StatusCode, message)
	default:
		return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, message)
	}
}

// IsSuccess reports whether the HTTP status code is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
