// Package headers handles the X-Bunny-* header conventions shared by the
// publish, consume, and subscribe paths.
package headers

import (
	"fmt"
	"net/http"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Request and response headers understood by the proxy.
const (
	Prefix        = "X-Bunny-"
	Identity      = "X-Bunny-Identity"
	Token         = "X-Bunny-Token"
	CorrelationID = "X-Bunny-CorrelationID"
	Redelivered   = "X-Bunny-Redelivered"
	MessageCount  = "X-Bunny-Message-Count"
)

// reserved headers are never passed through: credentials must not leak into
// AMQP headers or push targets, and the correlation id travels as an AMQP
// property instead.
func reserved(lowerKey string) bool {
	switch lowerKey {
	case strings.ToLower(Identity), strings.ToLower(Token), strings.ToLower(CorrelationID):
		return true
	}
	return false
}

// PassThrough extracts X-Bunny-* pass-through headers from an inbound HTTP
// request into an AMQP header table. Keys are lower-cased; credentials and
// the correlation id are stripped. Returns nil when nothing passes through.
func PassThrough(h http.Header) amqp.Table {
	var table amqp.Table
	for key, values := range h {
		lower := strings.ToLower(key)
		if !strings.HasPrefix(lower, strings.ToLower(Prefix)) || reserved(lower) {
			continue
		}
		if len(values) == 0 {
			continue
		}
		if table == nil {
			table = amqp.Table{}
		}
		table[lower] = values[0]
	}
	return table
}

// Apply copies X-Bunny-* pass-through entries from an AMQP header table onto
// an outbound HTTP header. Non-string values are rendered with fmt.
func Apply(dst http.Header, table amqp.Table) {
	for key, val := range table {
		lower := strings.ToLower(key)
		if !strings.HasPrefix(lower, strings.ToLower(Prefix)) || reserved(lower) {
			continue
		}
		switch v := val.(type) {
		case string:
			dst.Set(lower, v)
		case nil:
			// skip
		default:
			dst.Set(lower, fmt.Sprint(v))
		}
	}
}
