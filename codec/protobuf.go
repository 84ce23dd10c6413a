package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

type protobufCodec struct{}

var (
	protobufTypes    = []string{"application/x-protobuf", "application/protobuf"}
	protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()
)

// Protobuf handles the binary protobuf encoding of generated message types.
func Protobuf() Codec { return protobufCodec{} }

func (protobufCodec) ContentTypes() []string { return protobufTypes }

func protoType(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr && t.Implements(protoMessageType)
}

func (protobufCodec) CanDecode(t reflect.Type, contentType string) bool {
	return protoType(t) && supports(protobufTypes, contentType)
}

func (protobufCodec) CanEncode(t reflect.Type, contentType string) bool {
	return protoType(t) && supports(protobufTypes, contentType)
}

func (protobufCodec) Encode(v any, contentType string) (Message, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return Message{}, fmt.Errorf("codec: protobuf cannot encode %T", v)
	}
	b, err := proto.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("codec: protobuf encode: %w", err)
	}
	return Message{Payload: b, ContentType: resolve(protobufTypes, contentType)}, nil
}

func (protobufCodec) Decode(m Message, t reflect.Type) (any, error) {
	if !protoType(t) {
		return nil, fmt.Errorf("codec: protobuf cannot decode into %s", t)
	}
	msg := reflect.New(t.Elem()).Interface().(proto.Message)
	if err := proto.Unmarshal(m.Payload, msg); err != nil {
		return nil, fmt.Errorf("codec: protobuf decode: %w", err)
	}
	return msg, nil
}
