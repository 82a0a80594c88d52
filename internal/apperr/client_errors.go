package apperr

var (
	ErrAuth            = New(CodeAuth, "invalid credentials")
	ErrUnauthenticated = New(CodeUnauthenticated, "not authenticated")
	ErrNetwork         = New(CodeNetwork, "network error")
	ErrServer          = New(CodeServer, "server error")
	ErrMalformedEvent  = New(CodeMalformedEvent, "malformed event")
	ErrInvalidArgument = New(CodeInvalidArgument, "invalid argument")
	ErrNotFound        = New(CodeNotFound, "not found")
)
