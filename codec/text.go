package codec

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

var (
	textTypes           = []string{"text/plain", "*/*"}
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	stringerType        = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

type textCodec struct{}

// Text writes strings as text/plain and reads any payload into a string.
func Text() Codec { return textCodec{} }

func (textCodec) ContentTypes() []string { return textTypes }

func (textCodec) CanDecode(t reflect.Type, contentType string) bool {
	return (t.Kind() == reflect.String || isEmptyInterface(t)) && supports(textTypes, contentType)
}

func (textCodec) CanEncode(t reflect.Type, contentType string) bool {
	return t.Kind() == reflect.String && supports(textTypes, contentType)
}

func (textCodec) Encode(v any, contentType string) (Message, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return Message{}, fmt.Errorf("codec: text cannot encode %T", v)
	}
	return Message{Payload: []byte(rv.String()), ContentType: resolve(textTypes, contentType)}, nil
}

func (textCodec) Decode(m Message, t reflect.Type) (any, error) {
	if isEmptyInterface(t) {
		return string(m.Payload), nil
	}
	return reflect.ValueOf(string(m.Payload)).Convert(t).Interface(), nil
}

type scalarTextCodec struct{}

// ScalarText converts booleans, numbers and text (un)marshalers to and from
// their text/plain representation.
func ScalarText() Codec { return scalarTextCodec{} }

func (scalarTextCodec) ContentTypes() []string { return textTypes }

func scalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (scalarTextCodec) CanDecode(t reflect.Type, contentType string) bool {
	if !supports(textTypes, contentType) {
		return false
	}
	return scalarKind(t.Kind()) || reflect.PointerTo(t).Implements(textUnmarshalerType)
}

func (scalarTextCodec) CanEncode(t reflect.Type, contentType string) bool {
	if !supports(textTypes, contentType) {
		return false
	}
	return scalarKind(t.Kind()) || t.Implements(textMarshalerType) || t.Implements(stringerType)
}

func (scalarTextCodec) Encode(v any, contentType string) (Message, error) {
	var s string
	rv := reflect.ValueOf(v)
	if m, ok := v.(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return Message{}, fmt.Errorf("codec: text encode: %w", err)
		}
		s = string(b)
	} else if rv.IsValid() && scalarKind(rv.Kind()) {
		switch rv.Kind() {
		case reflect.Bool:
			s = strconv.FormatBool(rv.Bool())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			s = strconv.FormatUint(rv.Uint(), 10)
		case reflect.Float32:
			s = strconv.FormatFloat(rv.Float(), 'g', -1, 32)
		default:
			s = strconv.FormatFloat(rv.Float(), 'g', -1, 64)
		}
	} else if st, ok := v.(fmt.Stringer); ok {
		s = st.String()
	} else {
		return Message{}, fmt.Errorf("codec: text cannot encode %T", v)
	}
	return Message{Payload: []byte(s), ContentType: resolve(textTypes, contentType)}, nil
}

func (scalarTextCodec) Decode(m Message, t reflect.Type) (any, error) {
	s := string(m.Payload)
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText(m.Payload); err != nil {
			return nil, fmt.Errorf("codec: text decode: %w", err)
		}
		return ptr.Elem().Interface(), nil
	}
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("codec: text decode: %w", err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("codec: text decode: %w", err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("codec: text decode: %w", err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("codec: text decode: %w", err)
		}
		v.SetFloat(f)
	default:
		return nil, fmt.Errorf("codec: text cannot decode into %s", t)
	}
	return v.Interface(), nil
}
