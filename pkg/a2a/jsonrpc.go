package a2a

import "encoding/json"

// Request is the JSON-RPC 2.0 envelope. Params stay raw until the
// method is known; the seven recognized methods form a closed tagged
// union discriminated by Method.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      any        `json:"id"`
	Result  any        `json:"result,omitempty"`
	Error   *WireError `json:"error,omitempty"`
}

const Version = "2.0"

// Recognized methods.
const (
	MethodSendTask      = "tasks/send"
	MethodSendSubscribe = "tasks/sendSubscribe"
	MethodGetTask       = "tasks/get"
	MethodCancelTask    = "tasks/cancel"
	MethodSetPush       = "tasks/pushNotification/set"
	MethodGetPush       = "tasks/pushNotification/get"
	MethodResubscribe   = "tasks/resubscribe"
)

func NewResponse(id any, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func NewErrorResponse(id any, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err.Wire()}
}
