package rpcclient

import (
	"encoding/json"
	"fmt"
)

// StatusError reports a non-2xx HTTP response from the upstream endpoint. The
// last observed StatusError is returned unchanged when retries are exhausted
// so callers never lose the root cause.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Body) > 0 {
		return fmt.Sprintf("rpc call failed with status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("rpc call failed with status %d", e.Code)
}

// RPCError carries a JSON-RPC 2.0 error object returned by the upstream. It is
// a semantic failure and never retried.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
