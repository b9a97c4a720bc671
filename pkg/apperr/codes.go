package apperr

// Code classifies an application error for transport mapping.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeDuplicateRequest  Code = "DUPLICATE_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodeMalformedPayload  Code = "MALFORMED_PAYLOAD"
	CodeTransportFailure  Code = "TRANSPORT_FAILURE"
	CodeInternal          Code = "INTERNAL"
)
