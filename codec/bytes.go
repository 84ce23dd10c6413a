package codec

import (
	"fmt"
	"reflect"
)

type bytesCodec struct{}

var (
	bytesTypes = []string{"application/octet-stream", "*/*"}
	bytesType  = reflect.TypeOf([]byte(nil))
)

// Bytes passes []byte payloads through untouched.
func Bytes() Codec { return bytesCodec{} }

func (bytesCodec) ContentTypes() []string { return bytesTypes }

func (bytesCodec) CanDecode(t reflect.Type, contentType string) bool {
	return t == bytesType && supports(bytesTypes, contentType)
}

func (bytesCodec) CanEncode(t reflect.Type, contentType string) bool {
	return t == bytesType && supports(bytesTypes, contentType)
}

func (bytesCodec) Encode(v any, contentType string) (Message, error) {
	b, ok := v.([]byte)
	if !ok {
		return Message{}, fmt.Errorf("codec: bytes cannot encode %T", v)
	}
	return Message{Payload: b, ContentType: resolve(bytesTypes, contentType)}, nil
}

func (bytesCodec) Decode(m Message, _ reflect.Type) (any, error) {
	return append([]byte(nil), m.Payload...), nil
}
