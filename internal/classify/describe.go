package classify

import (
	"encoding/json"
	"fmt"
)

// describeHTTPError builds the diagnostic detail for a failed response.
// It is logged and reported, never shown to users.
func describeHTTPError(statusCode int, body []byte) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"error_code"`
	}

	_ = json.Unmarshal(body, &errResp)

	msg := errResp.Message
	if msg == "" {
		msg = errResp.Error
	}

	prefix := "HTTP error"
	if statusCode >= 500 {
		prefix = "server error"
	}

	baseMsg := fmt.Sprintf("%s: %d", prefix, statusCode)
	if desc := httpStatusDescription(statusCode); desc != "" {
		baseMsg = fmt.Sprintf("%s: %d (%s)", prefix, statusCode, desc)
	}
	if errResp.Code != "" {
		baseMsg = fmt.Sprintf("%s [%s]", baseMsg, errResp.Code)
	}
	if msg != "" {
		baseMsg = fmt.Sprintf("%s: %s", baseMsg, msg)
	}
	return baseMsg
}

// httpStatusDescription returns a human-readable description for common HTTP status codes.
// Covers the Cloudflare 52x range the API sits behind.
func httpStatusDescription(statusCode int) string {
	descriptions := map[int]string{
		400: "Bad Request",
		401: "Unauthorized",
		403: "Forbidden",
		404: "Not Found",
		408: "Request Timeout",
		409: "Conflict",
		422: "Unprocessable Entity",
		429: "Too Many Requests",
		500: "Internal Server Error",
		501: "Not Implemented",
		502: "Bad Gateway",
		503: "Service Unavailable",
		504: "Gateway Timeout",
		520: "Web Server Error",
		521: "Web Server Is Down",
		522: "Connection Timed Out",
		523: "Origin Is Unreachable",
		524: "A Timeout Occurred",
		525: "SSL Handshake Failed",
		526: "Invalid SSL Certificate",
		530: "Origin DNS Error",
	}
	return descriptions[statusCode]
}
