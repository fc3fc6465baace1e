package server

import (
	"errors"
	"net/http"

	"github.com/getbunnyd/bunnyd/pkg/consume"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/parser"
	"github.com/getbunnyd/bunnyd/pkg/publish"
)

// Error codes carried in JSON error bodies.
const (
	codeUnsupportedContentType = "UNSUPPORTED_CONTENT_TYPE"
	codeInvalidPayload         = "INVALID_PAYLOAD"
	codeForbidden              = "FORBIDDEN"
	codeUnknownQueue           = "UNKNOWN_QUEUE"
	codeEmpty                  = "EMPTY"
	codeBrokerRejected         = "BROKER_REJECTED"
	codeShuttingDown           = "SHUTTING_DOWN"
	codeInternal               = "INTERNAL"
)

// statusFor maps a domain error to its HTTP status and error code. Unmatched
// errors are internal; the caller logs them with a correlation id.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, parser.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType, codeUnsupportedContentType
	case errors.Is(err, parser.ErrInvalidPayload):
		return http.StatusBadRequest, codeInvalidPayload
	case errors.Is(err, identity.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, consume.ErrEmpty):
		return http.StatusLocked, codeEmpty
	case errors.Is(err, publish.ErrBrokerRejected):
		return http.StatusBadGateway, codeBrokerRejected
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
