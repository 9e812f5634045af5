package vignette

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Decode maps a generic document (YAML, JSON or frontmatter) onto a Vignette.
// Field names follow the JSON tags of the domain types.
func Decode(doc map[string]any) (*domain.Vignette, error) {
	var v domain.Vignette
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &v,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(jsonNumberHook),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(normalize(doc)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidVignette, err)
	}
	return &v, nil
}

// jsonNumberHook converts json.Number into the numeric kind of the target field.
func jsonNumberHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	n, ok := data.(json.Number)
	if !ok {
		return data, nil
	}
	if to.Kind() == reflect.Ptr {
		to = to.Elem()
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return n.Int64()
	case reflect.Float32, reflect.Float64:
		return n.Float64()
	case reflect.String:
		return n.String(), nil
	}
	return data, nil
}
