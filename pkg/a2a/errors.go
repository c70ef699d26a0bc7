package a2a

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/switchboard-dev/switchboard/pkg/session"
)

// JSON-RPC error codes. Protocol codes follow the JSON-RPC 2.0
// reserved range; application codes sit below -32000. The set is
// closed: every failure crossing the wire is classified into exactly
// one of these.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound                 = -32001
	CodeTaskNotCancelable            = -32002
	CodePushNotificationNotSupported = -32003
	CodeOperationNotSupported        = -32004
	CodeContentTypeNotSupported      = -32005
	CodeAuthenticationError          = -32006
	CodeAuthorizationError           = -32007
	CodeRateLimitExceeded            = -32008
	CodeServiceUnavailable           = -32009
	CodeInvalidSession               = -32010
	CodeConfigurationError           = -32011
	CodeResourceNotFound             = -32012
	CodeValidationFailed             = -32013
	CodeRequestTimeout               = -32014
	CodeNetworkError                 = -32015
	CodeToolServerError              = -32016
	CodeToolExecutionError           = -32017
	CodeToolConfigurationError       = -32018
	CodeRemoteAgentError             = -32019
	CodeRemoteAgentNotFound          = -32020
)

// Error is a tagged wire-level error: a stable numeric code plus a
// technical message. It implements error so operations can return it
// directly and the dispatch boundary can pass it through unchanged.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func NewError(code int, message string) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message}
}

func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var defaultMessages = map[int]string{
	CodeParseError:                   "Invalid JSON payload",
	CodeInvalidRequest:               "Request payload validation error",
	CodeMethodNotFound:               "Method not found",
	CodeInvalidParams:                "Invalid parameters",
	CodeInternalError:                "Internal error",
	CodeTaskNotFound:                 "Task not found",
	CodeTaskNotCancelable:            "Task cannot be canceled",
	CodePushNotificationNotSupported: "Push Notification is not supported",
	CodeOperationNotSupported:        "This operation is not supported",
	CodeContentTypeNotSupported:      "Incompatible content types",
	CodeAuthenticationError:          "Authentication required",
	CodeAuthorizationError:           "Insufficient permissions",
	CodeRateLimitExceeded:            "Rate limit exceeded",
	CodeServiceUnavailable:           "Service temporarily unavailable",
	CodeInvalidSession:               "Invalid or expired session",
	CodeConfigurationError:           "Configuration error",
	CodeResourceNotFound:             "Resource not found",
	CodeValidationFailed:             "Validation failed",
	CodeRequestTimeout:               "Request timeout",
	CodeNetworkError:                 "Network error",
	CodeToolServerError:              "Tool server connection failed",
	CodeToolExecutionError:           "Tool execution failed",
	CodeToolConfigurationError:       "Tool server configuration is invalid",
	CodeRemoteAgentError:             "Remote agent connection failed",
	CodeRemoteAgentNotFound:          "Remote agent endpoint not found",
}

// userFacing maps each code to the short user message and suggested
// recovery action attached to wire errors.
var userFacing = map[int][2]string{
	CodeParseError:                   {"Invalid request format", "Please check your request format and try again"},
	CodeInvalidRequest:               {"Invalid request", "The request format is incorrect"},
	CodeMethodNotFound:               {"Method not found", "The requested operation is not available"},
	CodeInvalidParams:                {"Invalid parameters", "Please check your input parameters"},
	CodeInternalError:                {"Internal error", "Something went wrong on our end. Please try again later"},
	CodeTaskNotFound:                 {"Task not found", "The requested task could not be found"},
	CodeTaskNotCancelable:            {"Cannot cancel task", "This task cannot be canceled at this time"},
	CodePushNotificationNotSupported: {"Push notifications not supported", "Push notifications are not available"},
	CodeOperationNotSupported:        {"Operation not supported", "This operation is not currently supported"},
	CodeContentTypeNotSupported:      {"Content type not supported", "The content type is not supported"},
	CodeAuthenticationError:          {"Authentication required", "Please log in to continue"},
	CodeAuthorizationError:           {"Insufficient permissions", "You don't have permission to perform this action"},
	CodeRateLimitExceeded:            {"Rate limit exceeded", "Too many requests. Please wait a moment and try again"},
	CodeServiceUnavailable:           {"Service unavailable", "The service is temporarily unavailable. Please try again later"},
	CodeInvalidSession:               {"Invalid session", "Your session has expired. Please start a new one"},
	CodeConfigurationError:           {"Configuration error", "There's a configuration issue. Please contact support"},
	CodeResourceNotFound:             {"Resource not found", "The requested resource could not be found"},
	CodeValidationFailed:             {"Validation failed", "Please check your input and try again"},
	CodeRequestTimeout:               {"Request timeout", "The request took too long. Please try again"},
	CodeNetworkError:                 {"Network error", "Network connection failed. Please check your connection"},
	CodeToolServerError:              {"Tool server not available", "Check if the tool server is running and accessible"},
	CodeToolExecutionError:           {"Tool operation failed", "The requested tool operation could not be completed"},
	CodeToolConfigurationError:       {"Tool server misconfigured", "Check the tool server settings and try again"},
	CodeRemoteAgentError:             {"Remote agent connection failed", "Check if the agent URL is correct and accessible"},
	CodeRemoteAgentNotFound:          {"Remote agent not found", "Verify the URL and agent deployment"},
}

var httpStatus = map[int]int{
	CodeParseError:                   http.StatusBadRequest,
	CodeInvalidRequest:               http.StatusBadRequest,
	CodeMethodNotFound:               http.StatusNotFound,
	CodeInvalidParams:                http.StatusBadRequest,
	CodeInternalError:                http.StatusInternalServerError,
	CodeTaskNotFound:                 http.StatusNotFound,
	CodeTaskNotCancelable:            http.StatusBadRequest,
	CodePushNotificationNotSupported: http.StatusNotImplemented,
	CodeOperationNotSupported:        http.StatusNotImplemented,
	CodeContentTypeNotSupported:      http.StatusUnsupportedMediaType,
	CodeAuthenticationError:          http.StatusUnauthorized,
	CodeAuthorizationError:           http.StatusForbidden,
	CodeRateLimitExceeded:            http.StatusTooManyRequests,
	CodeServiceUnavailable:           http.StatusServiceUnavailable,
	CodeInvalidSession:               http.StatusUnauthorized,
	CodeConfigurationError:           http.StatusInternalServerError,
	CodeResourceNotFound:             http.StatusNotFound,
	CodeValidationFailed:             http.StatusUnprocessableEntity,
	CodeRequestTimeout:               http.StatusRequestTimeout,
	CodeNetworkError:                 http.StatusBadGateway,
	CodeToolServerError:              http.StatusBadGateway,
	CodeToolExecutionError:           http.StatusInternalServerError,
	CodeToolConfigurationError:       http.StatusInternalServerError,
	CodeRemoteAgentError:             http.StatusBadGateway,
	CodeRemoteAgentNotFound:          http.StatusNotFound,
}

// HTTPStatus maps an error code to the transport status it would carry
// if errors were surfaced at the HTTP layer. The dispatch endpoint
// itself always answers 200 with the error in-band; this mapping serves
// the REST-style surfaces.
func HTTPStatus(code int) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WireError is the error object serialized into JSON-RPC responses,
// carrying the user-facing message/recovery pair alongside the
// technical one.
type WireError struct {
	Code           int    `json:"code"`
	Message        string `json:"message"`
	Data           any    `json:"data,omitempty"`
	UserMessage    string `json:"user_message,omitempty"`
	RecoveryAction string `json:"recovery_action,omitempty"`
}

func (e *Error) Wire() *WireError {
	w := &WireError{Code: e.Code, Message: e.Message, Data: e.Data}
	if uf, ok := userFacing[e.Code]; ok {
		w.UserMessage, w.RecoveryAction = uf[0], uf[1]
	} else {
		w.UserMessage = e.Message
		w.RecoveryAction = "No recovery action available."
	}
	return w
}

// Classify converts an arbitrary failure into exactly one taxonomy
// entry. Typed errors win; substring matching is a best-effort fallback
// for opaque collaborator failures; anything unrecognized becomes an
// internal error carrying only the failure's string form.
func Classify(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, session.ErrInvalidEvent):
		return Errorf(CodeValidationFailed, "%v", err)
	case errors.Is(err, session.ErrSessionNotFound):
		return Errorf(CodeInvalidSession, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Errorf(CodeRequestTimeout, "%v", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "tool server", "mcp"):
		if containsAny(msg, "configuration", "redirect") {
			return Errorf(CodeToolConfigurationError, "%v", err)
		}
		return Errorf(CodeToolServerError, "%v", err)
	case containsAny(msg, "remote agent", "agent endpoint"):
		if strings.Contains(msg, "404") || strings.Contains(msg, "not found") {
			return Errorf(CodeRemoteAgentNotFound, "%v", err)
		}
		return Errorf(CodeRemoteAgentError, "%v", err)
	case containsAny(msg, "connection refused", "no route to host",
		"name or service not known", "broken pipe", "connection reset"):
		return Errorf(CodeNetworkError, "%v", err)
	case strings.Contains(msg, "timeout"):
		return Errorf(CodeRequestTimeout, "%v", err)
	case strings.Contains(msg, "unauthorized"):
		return Errorf(CodeAuthenticationError, "%v", err)
	case strings.Contains(msg, "rate limit"):
		return Errorf(CodeRateLimitExceeded, "%v", err)
	}

	return Errorf(CodeInternalError, "%v", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
