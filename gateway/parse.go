package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	goSession "github.com/MrEthical07/goSession"
)

// ParseJSON decodes body into v, which must be a non-nil pointer.
//
// An empty or whitespace-only body is ErrEmptyResponse. A body that starts
// with '<' is ErrUnexpectedContentType (an HTML error page from a proxy or
// captive portal). Anything that is not exactly one JSON value of the target
// shape is ErrMalformedResponse. v is left untouched on every failure.
func ParseJSON(body []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("gateway: ParseJSON target must be a non-nil pointer")
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return goSession.ErrEmptyResponse
	}
	if trimmed[0] == '<' {
		return goSession.ErrUnexpectedContentType
	}

	tmp := reflect.New(rv.Elem().Type())
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(tmp.Interface()); err != nil {
		return fmt.Errorf("%w: %w", goSession.ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", goSession.ErrMalformedResponse)
	}

	rv.Elem().Set(tmp.Elem())
	return nil
}
