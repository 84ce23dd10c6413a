package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type jsonCodec struct{}

var jsonTypes = []string{"application/json"}

// JSON handles application/json for any type. Protobuf messages use the
// canonical protobuf JSON mapping.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentTypes() []string { return jsonTypes }

func (jsonCodec) CanDecode(t reflect.Type, contentType string) bool {
	return supports(jsonTypes, contentType) && t.Kind() != reflect.Chan && t.Kind() != reflect.Func
}

func (jsonCodec) CanEncode(t reflect.Type, contentType string) bool {
	return supports(jsonTypes, contentType) && t.Kind() != reflect.Chan && t.Kind() != reflect.Func
}

func (jsonCodec) Encode(v any, _ string) (Message, error) {
	var (
		b   []byte
		err error
	)
	if m, ok := v.(proto.Message); ok {
		b, err = protojson.Marshal(m)
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return Message{}, fmt.Errorf("codec: json encode: %w", err)
	}
	return Message{Payload: b, ContentType: jsonTypes[0]}, nil
}

func (jsonCodec) Decode(m Message, t reflect.Type) (any, error) {
	if t.Implements(protoMessageType) && t.Kind() == reflect.Ptr {
		msg := reflect.New(t.Elem()).Interface().(proto.Message)
		if err := protojson.Unmarshal(m.Payload, msg); err != nil {
			return nil, fmt.Errorf("codec: json decode: %w", err)
		}
		return msg, nil
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(m.Payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: json decode: %w", err)
	}
	return ptr.Elem().Interface(), nil
}
