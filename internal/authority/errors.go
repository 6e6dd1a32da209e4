package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/artpar/kith/internal/core"
)

// ErrMalformedResponse is returned when a response body cannot be decoded
// into the expected shape.
var ErrMalformedResponse = errors.New("malformed authority response")

// Error codes the authority reports in its error envelope.
const (
	CodeAlreadyRequested = "already_requested"
	CodeAlreadyLiked     = "already_liked"
	CodeAlreadyConnected = "already_connected"
	CodeNotLiked         = "not_liked"
	CodeNotConnected     = "not_connected"
	CodeSelfTarget       = "self_target"
)

// Error is a non-2xx response from the authority.
type Error struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authority error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("authority error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authority error %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the authority.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the authority.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
}

// parseError builds an Error from a response body. It accepts the
// {"error":{"code","message"}} envelope, a flat {"code","message"} object,
// and falls back to the raw text.
func parseError(status int, body []byte) *Error {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		if err := json.Unmarshal(envelope.Error, &detail); err == nil {
			return &Error{StatusCode: status, Code: detail.Code, Message: detail.Message}
		}
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil {
			return &Error{StatusCode: status, Message: msg}
		}
	}
	if err := json.Unmarshal(body, &detail); err == nil && (detail.Code != "" || detail.Message != "") {
		return &Error{StatusCode: status, Code: detail.Code, Message: detail.Message}
	}

	return &Error{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}

// classify maps an error payload that actually describes an achieved state
// onto a result variant. ok is false for genuine failures.
func classify(kind core.RelationKind, on bool, e *Error) (core.MutationResult, bool) {
	switch e.Code {
	case CodeAlreadyRequested:
		return core.MutationResult{Kind: core.ResultPending, Status: core.StatusPending}, true
	case CodeAlreadyConnected:
		return core.MutationResult{Kind: core.ResultAlreadyOn, Status: core.StatusConnected}, true
	case CodeAlreadyLiked:
		return core.MutationResult{Kind: core.ResultAlreadyOn}, true
	case CodeNotLiked:
		return core.MutationResult{Kind: core.ResultAlreadyOff}, true
	case CodeNotConnected:
		return core.MutationResult{Kind: core.ResultAlreadyOff, Status: core.StatusNone}, true
	case CodeSelfTarget:
		return core.MutationResult{Kind: core.ResultSelf, Status: core.StatusSelf}, true
	}

	// Older deployments only send a message.
	msg := strings.ToLower(e.Message)
	switch {
	case kind == core.RelationConnected && on && strings.Contains(msg, "request already sent"):
		return core.MutationResult{Kind: core.ResultPending, Status: core.StatusPending}, true
	case kind == core.RelationConnected && strings.Contains(msg, "yourself"):
		return core.MutationResult{Kind: core.ResultSelf, Status: core.StatusSelf}, true
	}
	return core.MutationResult{}, false
}
