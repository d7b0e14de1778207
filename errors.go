package oaipmh

import (
	"fmt"

	"emperror.dev/errors"
)

var (
	ErrNoEndpoint        = errors.NewPlain("an endpoint is required")
	ErrNoVerb            = errors.NewPlain("no verb")
	ErrVerbNotSupported  = errors.NewPlain("verb not supported by client")
	ErrInvalidMethod     = errors.NewPlain("request method must be GET or POST")
	ErrMissingArgument   = errors.NewPlain("missing argument")
	ErrMalformedResponse = errors.NewPlain("malformed response")
	ErrTooManyRequests   = errors.NewPlain("too many requests")
)

// ErrorKind classifies the error codes defined in 3.6 Error and Exception
// Conditions.
type ErrorKind int

const (
	// KindProtocol is used for codes the protocol does not define.
	KindProtocol ErrorKind = iota
	KindBadArgument
	KindBadResumptionToken
	KindBadVerb
	KindCannotDisseminateFormat
	KindIDDoesNotExist
	KindNoRecordsMatch
	KindNoMetadataFormats
	KindNoSetHierarchy
)

// Sentinels, one per kind. OAIError unwraps to these.
var (
	ErrProtocol                = errors.NewPlain("oai-pmh error")
	ErrBadArgument             = errors.NewPlain("badArgument")
	ErrBadResumptionToken      = errors.NewPlain("badResumptionToken")
	ErrBadVerb                 = errors.NewPlain("badVerb")
	ErrCannotDisseminateFormat = errors.NewPlain("cannotDisseminateFormat")
	ErrIDDoesNotExist          = errors.NewPlain("idDoesNotExist")
	ErrNoRecordsMatch          = errors.NewPlain("noRecordsMatch")
	ErrNoMetadataFormats       = errors.NewPlain("noMetadataFormats")
	ErrNoSetHierarchy          = errors.NewPlain("noSetHierarchy")
)

var errorKinds = map[string]ErrorKind{
	"badArgument":             KindBadArgument,
	"badResumptionToken":      KindBadResumptionToken,
	"badVerb":                 KindBadVerb,
	"cannotDisseminateFormat": KindCannotDisseminateFormat,
	"idDoesNotExist":          KindIDDoesNotExist,
	"noRecordsMatch":          KindNoRecordsMatch,
	"noMetadataFormats":       KindNoMetadataFormats,
	"noSetHierarchy":          KindNoSetHierarchy,
}

var kindSentinels = map[ErrorKind]error{
	KindProtocol:                ErrProtocol,
	KindBadArgument:             ErrBadArgument,
	KindBadResumptionToken:      ErrBadResumptionToken,
	KindBadVerb:                 ErrBadVerb,
	KindCannotDisseminateFormat: ErrCannotDisseminateFormat,
	KindIDDoesNotExist:          ErrIDDoesNotExist,
	KindNoRecordsMatch:          ErrNoRecordsMatch,
	KindNoMetadataFormats:       ErrNoMetadataFormats,
	KindNoSetHierarchy:          ErrNoSetHierarchy,
}

// KindOf maps an error code to its kind. Unknown codes map to KindProtocol.
func KindOf(code string) ErrorKind {
	if k, ok := errorKinds[code]; ok {
		return k
	}
	return KindProtocol
}

func (k ErrorKind) String() string {
	for code, kind := range errorKinds {
		if kind == k {
			return code
		}
	}
	return "protocol"
}

// OAIError wraps OAI error codes and messages.
type OAIError struct {
	Code    string
	Message string
}

// Error to satisfy interface.
func (e OAIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Kind returns the error kind for the code.
func (e OAIError) Kind() ErrorKind {
	return KindOf(e.Code)
}

// Unwrap allows errors.Is(err, ErrNoRecordsMatch) and the like.
func (e OAIError) Unwrap() error {
	return kindSentinels[e.Kind()]
}

// IsKind reports whether err carries a protocol error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var oe OAIError
	if errors.As(err, &oe) {
		return oe.Kind() == kind
	}
	return false
}

// StatusError is returned for HTTP responses outside the 2xx range, which do
// not carry a protocol error.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s for %s", e.Status, e.URL)
}
