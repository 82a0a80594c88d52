package apperr

type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeAuth            Code = "AUTH"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNetwork         Code = "NETWORK"
	CodeServer          Code = "SERVER"
	CodeMalformedEvent  Code = "MALFORMED_EVENT"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
)
