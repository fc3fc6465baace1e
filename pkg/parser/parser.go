// Package parser shapes HTTP request bodies into broker payloads and back.
//
// A parser is bound to a route at startup. Binary routes pass bytes through
// verbatim under application/octet-stream; JSON routes parse, optionally
// validate against a JSON Schema, and re-serialize to canonical UTF-8 bytes
// for transport.
package parser

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/getbunnyd/bunnyd/pkg/config"
)

// Wire content types.
const (
	MediaTypeBinary = "application/octet-stream"
	MediaTypeJSON   = "application/json"
)

// Parser failure kinds, recovered by the HTTP layer.
var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrInvalidPayload         = errors.New("invalid payload")
)

// Payload is a request body shaped for the broker.
type Payload struct {
	Body        []byte
	ContentType string
}

// Parser validates and shapes message bodies in both directions.
type Parser interface {
	// ParseInbound shapes an HTTP request body into a broker payload.
	ParseInbound(contentType string, body []byte) (Payload, error)

	// RenderOutbound shapes a stored message body for an outbound push,
	// returning the wire content type and bytes.
	RenderOutbound(body []byte) (string, []byte, error)
}

// New builds the parser for a route content type. The schema is only valid
// for JSON routes and is compiled once here; a broken schema is a startup
// error.
func New(kind config.ContentType, schema map[string]any) (Parser, error) {
	switch kind {
	case config.ContentTypeBinary:
		if schema != nil {
			return nil, fmt.Errorf("schema is only valid for json routes")
		}
		return binaryParser{}, nil
	case config.ContentTypeJSON:
		return newJSONParser(schema)
	default:
		return nil, fmt.Errorf("unknown content type %q", kind)
	}
}

// mediaType extracts the media type from a Content-Type header value,
// tolerating parameters like charset.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
