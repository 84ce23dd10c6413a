package codec

import (
	"fmt"
	"net/url"
	"reflect"
)

type formCodec struct{}

var (
	formTypes       = []string{"application/x-www-form-urlencoded"}
	urlValuesType   = reflect.TypeOf(url.Values{})
	multiValueType  = reflect.TypeOf(map[string][]string{})
	singleValueType = reflect.TypeOf(map[string]string{})
)

// Form handles application/x-www-form-urlencoded for url.Values,
// map[string][]string and map[string]string.
func Form() Codec { return formCodec{} }

func (formCodec) ContentTypes() []string { return formTypes }

func formType(t reflect.Type) bool {
	return t == urlValuesType || t == multiValueType || t == singleValueType
}

func (formCodec) CanDecode(t reflect.Type, contentType string) bool {
	return formType(t) && supports(formTypes, contentType)
}

func (formCodec) CanEncode(t reflect.Type, contentType string) bool {
	return formType(t) && supports(formTypes, contentType)
}

func (formCodec) Encode(v any, _ string) (Message, error) {
	var values url.Values
	switch m := v.(type) {
	case url.Values:
		values = m
	case map[string][]string:
		values = url.Values(m)
	case map[string]string:
		values = url.Values{}
		for k, s := range m {
			values.Set(k, s)
		}
	case nil:
		values = url.Values{}
	default:
		return Message{}, fmt.Errorf("codec: form cannot encode %T", v)
	}
	return Message{Payload: []byte(values.Encode()), ContentType: formTypes[0]}, nil
}

func (formCodec) Decode(m Message, t reflect.Type) (any, error) {
	values, err := url.ParseQuery(string(m.Payload))
	if err != nil {
		return nil, fmt.Errorf("codec: form decode: %w", err)
	}
	switch t {
	case urlValuesType:
		return values, nil
	case multiValueType:
		return map[string][]string(values), nil
	default:
		single := make(map[string]string, len(values))
		for k := range values {
			single[k] = values.Get(k)
		}
		return single, nil
	}
}
