package parser

import (
	"testing"

	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryParser_Passthrough(t *testing.T) {
	p, err := New(config.ContentTypeBinary, nil)
	require.NoError(t, err)

	body := []byte{0x00, 0xff, 0x10, 'a'}
	payload, err := p.ParseInbound("application/octet-stream", body)
	require.NoError(t, err)
	assert.Equal(t, body, payload.Body)
	assert.Equal(t, MediaTypeBinary, payload.ContentType)
}

func TestBinaryParser_RejectsOtherContentTypes(t *testing.T) {
	p, err := New(config.ContentTypeBinary, nil)
	require.NoError(t, err)

	_, err = p.ParseInbound("application/json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedContentType)

	_, err = p.ParseInbound("", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestBinaryParser_RenderOutbound(t *testing.T) {
	p, err := New(config.ContentTypeBinary, nil)
	require.NoError(t, err)

	ct, body, err := p.RenderOutbound([]byte("binarystuff"))
	require.NoError(t, err)
	assert.Equal(t, MediaTypeBinary, ct)
	assert.Equal(t, []byte("binarystuff"), body)
}

func TestJSONParser_ParsesAndCanonicalizes(t *testing.T) {
	p, err := New(config.ContentTypeJSON, nil)
	require.NoError(t, err)

	payload, err := p.ParseInbound("application/json; charset=utf-8", []byte(" {\"ok\": true} "))
	require.NoError(t, err)
	assert.Equal(t, MediaTypeJSON, payload.ContentType)
	assert.JSONEq(t, `{"ok":true}`, string(payload.Body))
}

func TestJSONParser_RejectsWrongContentType(t *testing.T) {
	p, err := New(config.ContentTypeJSON, nil)
	require.NoError(t, err)

	_, err = p.ParseInbound("application/octet-stream", []byte("binarystuff"))
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestJSONParser_RejectsMalformedJSON(t *testing.T) {
	p, err := New(config.ContentTypeJSON, nil)
	require.NoError(t, err)

	_, err = p.ParseInbound("application/json", []byte(`{ouch, this doesn't look like json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestJSONParser_SchemaValidation(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	}
	p, err := New(config.ContentTypeJSON, schema)
	require.NoError(t, err)

	payload, err := p.ParseInbound("application/json", []byte(`{"name":"carrot"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"carrot"}`, string(payload.Body))

	_, err = p.ParseInbound("application/json", []byte(`{"name":42}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = p.ParseInbound("application/json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestJSONParser_BrokenSchemaIsStartupError(t *testing.T) {
	_, err := New(config.ContentTypeJSON, map[string]any{"type": "not-a-type"})
	assert.Error(t, err)
}

func TestJSONParser_RenderOutbound(t *testing.T) {
	p, err := New(config.ContentTypeJSON, nil)
	require.NoError(t, err)

	ct, body, err := p.RenderOutbound([]byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, MediaTypeJSON, ct)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, _, err = p.RenderOutbound([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNew_SchemaOnBinaryIsError(t *testing.T) {
	_, err := New(config.ContentTypeBinary, map[string]any{"type": "object"})
	assert.Error(t, err)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("xml", nil)
	assert.Error(t, err)
}
