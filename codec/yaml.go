package codec

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

type yamlCodec struct{}

var yamlTypes = []string{"application/yaml", "application/x-yaml", "text/yaml"}

// YAML handles application/yaml for plain Go values.
func YAML() Codec { return yamlCodec{} }

func (yamlCodec) ContentTypes() []string { return yamlTypes }

func yamlType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false
	}
	return !t.Implements(protoMessageType)
}

func (yamlCodec) CanDecode(t reflect.Type, contentType string) bool {
	return yamlType(t) && supports(yamlTypes, contentType)
}

func (yamlCodec) CanEncode(t reflect.Type, contentType string) bool {
	return yamlType(t) && supports(yamlTypes, contentType)
}

func (yamlCodec) Encode(v any, contentType string) (Message, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("codec: yaml encode: %w", err)
	}
	return Message{Payload: b, ContentType: resolve(yamlTypes, contentType)}, nil
}

func (yamlCodec) Decode(m Message, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := yaml.Unmarshal(m.Payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: yaml decode: %w", err)
	}
	return ptr.Elem().Interface(), nil
}
