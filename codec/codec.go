// Package codec converts values to and from encoded payloads keyed by
// content type, and negotiates which content type to use.
package codec

import (
	"errors"
	"fmt"
	"reflect"
)

// Message is an encoded value together with its content type and auxiliary
// headers.
type Message struct {
	Payload     []byte
	ContentType string
	Headers     map[string]string
}

// Codec encodes and decodes values of some Go types for some content types.
type Codec interface {
	// ContentTypes lists the advertised media types, most specific first.
	ContentTypes() []string
	// CanDecode reports whether a payload of contentType can be decoded into
	// t. An empty contentType means any content type the codec supports.
	CanDecode(t reflect.Type, contentType string) bool
	// CanEncode reports whether a value of type t can be written as
	// contentType.
	CanEncode(t reflect.Type, contentType string) bool
	// Encode writes v. contentType is one of ContentTypes or a concrete type
	// included by one of them.
	Encode(v any, contentType string) (Message, error)
	// Decode reads m into a new value of type t.
	Decode(m Message, t reflect.Type) (any, error)
}

// ErrNoCodec is matched by every NotFoundError.
var ErrNoCodec = errors.New("codec: no suitable codec")

// NotFoundError reports that no registered codec can serve a request.
type NotFoundError struct {
	Op           string
	Type         reflect.Type
	ContentTypes []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("codec: no codec can %s %s as %v", e.Op, TypeName(e.Type), e.ContentTypes)
}

// Is makes errors.Is(err, ErrNoCodec) true.
func (e *NotFoundError) Is(target error) bool { return target == ErrNoCodec }

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// TypeName renders t for diagnostics.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "[nil]"
	}
	return t.String()
}

func orAny(t reflect.Type) reflect.Type {
	if t == nil {
		return anyType
	}
	return t
}

func isEmptyInterface(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}

// supports reports whether one of the advertised types includes contentType.
func supports(advertised []string, contentType string) bool {
	if contentType == "" {
		return true
	}
	for _, mt := range advertised {
		if MediaIncludes(mt, contentType) {
			return true
		}
	}
	return false
}

// resolve picks the concrete content type to stamp on an encoded message.
func resolve(advertised []string, contentType string) string {
	if contentType != "" && Specificity(contentType) == specificConcrete {
		return BaseType(contentType)
	}
	for _, mt := range advertised {
		if Specificity(mt) == specificConcrete && (contentType == "" || MediaIncludes(contentType, mt)) {
			return mt
		}
	}
	return advertised[0]
}
