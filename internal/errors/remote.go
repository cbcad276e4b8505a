package errors

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// JSON-RPC 2.0 and A2A error codes.
const (
	CodeParseError                   = -32700
	CodeInvalidRequest               = -32600
	CodeMethodNotFound               = -32601
	CodeInvalidParams                = -32602
	CodeInternalError                = -32603
	CodeServerError                  = -32000
	CodeTaskNotFound                 = -32001
	CodeTaskNotCancelable            = -32002
	CodePushNotificationNotSupported = -32003
	CodeUnsupportedOperation         = -32004
	CodeContentTypeNotSupported      = -32005
	CodeInvalidAgentResponse         = -32006
)

var codeNames = map[int]string{
	CodeParseError:                   "ParseError",
	CodeInvalidRequest:               "InvalidRequest",
	CodeMethodNotFound:               "MethodNotFound",
	CodeInvalidParams:                "InvalidParams",
	CodeInternalError:                "InternalError",
	CodeServerError:                  "ServerError",
	CodeTaskNotFound:                 "TaskNotFound",
	CodeTaskNotCancelable:            "TaskNotCancelable",
	CodePushNotificationNotSupported: "PushNotificationNotSupported",
	CodeUnsupportedOperation:         "UnsupportedOperation",
	CodeContentTypeNotSupported:      "ContentTypeNotSupported",
	CodeInvalidAgentResponse:         "InvalidAgentResponse",
}

// RemoteError is an explicit error object returned by an agent, as opposed
// to a transport fault. It mirrors the JSON-RPC error object.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if name, ok := codeNames[e.Code]; ok {
		return fmt.Sprintf("%s (%d): %s", name, e.Code, e.Message)
	}
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// CodeName returns the well-known name of a JSON-RPC/A2A error code, or "".
func CodeName(code int) string {
	return codeNames[code]
}

// FromGRPCStatus converts a gRPC status into a RemoteError. The full status,
// including details, is kept in Data as protojson.
func FromGRPCStatus(st *status.Status) *RemoteError {
	re := &RemoteError{Code: int(st.Code()), Message: st.Message()}
	if len(st.Details()) > 0 {
		if raw, err := protojson.Marshal(st.Proto()); err == nil {
			re.Data = json.RawMessage(raw)
		}
	}
	return re
}
