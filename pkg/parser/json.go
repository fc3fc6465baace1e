package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jsonParser parses and optionally schema-validates JSON bodies, then
// re-serializes the value so the broker always carries canonical bytes.
type jsonParser struct {
	schema *jsonschema.Schema
}

func newJSONParser(schemaDoc map[string]any) (*jsonParser, error) {
	p := &jsonParser{}
	if schemaDoc == nil {
		return p, nil
	}

	// Round-trip through JSON so YAML-decoded values get consistent types.
	schemaBytes, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", strings.NewReader(string(schemaBytes))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	p.schema = schema
	return p, nil
}

func (p *jsonParser) ParseInbound(contentType string, body []byte) (Payload, error) {
	if mediaType(contentType) != MediaTypeJSON {
		return Payload{}, fmt.Errorf("%w: got %q, want %q", ErrUnsupportedContentType, contentType, MediaTypeJSON)
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if p.schema != nil {
		if err := p.schema.Validate(value); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	canonical, err := json.Marshal(value)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return Payload{Body: canonical, ContentType: MediaTypeJSON}, nil
}

func (p *jsonParser) RenderOutbound(body []byte) (string, []byte, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return "", nil, fmt.Errorf("%w: stored message is not valid JSON: %v", ErrInvalidPayload, err)
	}
	rendered, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return MediaTypeJSON, rendered, nil
}
