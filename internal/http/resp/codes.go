package resp

// Application codes carried in JSON bodies next to the HTTP status.
const (
	CodeOK            = 0
	CodeQueued        = 1
	CodeBadRequest    = 40000
	CodeUnauthorized  = 40100
	CodeNotFound      = 40400
	CodeConflict      = 40900
	CodeInternalError = 50000
	CodeUpstreamError = 50200
	CodeUnavailable   = 50300
)
