package codec

import (
	"reflect"
	"sort"
)

// Registry is an ordered, immutable list of codecs. Registration order
// breaks ties during negotiation. A Registry is safe for concurrent use.
type Registry struct {
	codecs []Codec
}

// NewRegistry returns a registry consulting codecs in the given order.
func NewRegistry(codecs ...Codec) *Registry {
	return &Registry{codecs: append([]Codec(nil), codecs...)}
}

// Default returns the registry used by the invoker binaries: JSON, form,
// text, scalar text, YAML, protobuf and raw bytes.
func Default() *Registry {
	return NewRegistry(JSON(), Form(), Text(), ScalarText(), YAML(), Protobuf(), Bytes())
}

// Codecs returns a copy of the registered codecs.
func (r *Registry) Codecs() []Codec {
	return append([]Codec(nil), r.codecs...)
}

// SelectEncoder finds the codec writing a value of type t in the most
// preferred accepted content type. It returns the concrete content type to
// stamp on the message.
func (r *Registry) SelectEncoder(t reflect.Type, accepted []string) (Codec, string, error) {
	t = orAny(t)
	for _, pattern := range ParseAccept(accepted) {
		for _, c := range r.codecs {
			for _, mt := range c.ContentTypes() {
				if !MediaIncludes(pattern, mt) || !c.CanEncode(t, mt) {
					continue
				}
				return c, resolve(c.ContentTypes(), mt), nil
			}
		}
	}
	return nil, "", &NotFoundError{Op: "encode", Type: t, ContentTypes: accepted}
}

// Encode negotiates and encodes v. declared stands in for the dynamic type
// when v is nil.
func (r *Registry) Encode(v any, declared reflect.Type, accepted []string) (Message, error) {
	t := declared
	if v != nil {
		t = reflect.TypeOf(v)
	}
	c, ct, err := r.SelectEncoder(t, accepted)
	if err != nil {
		return Message{}, err
	}
	return c.Encode(v, ct)
}

// SelectDecoder returns the first codec able to produce t from contentType.
func (r *Registry) SelectDecoder(t reflect.Type, contentType string) (Codec, error) {
	t = orAny(t)
	for _, c := range r.codecs {
		if c.CanDecode(t, contentType) {
			return c, nil
		}
	}
	return nil, &NotFoundError{Op: "decode", Type: t, ContentTypes: []string{contentType}}
}

// Decode reads m into a value of type t.
func (r *Registry) Decode(m Message, t reflect.Type) (any, error) {
	t = orAny(t)
	c, err := r.SelectDecoder(t, m.ContentType)
	if err != nil {
		return nil, err
	}
	return c.Decode(m, t)
}

// AcceptHeader lists, most specific first and without duplicates, the
// content types a payload may use to be decoded into t.
func (r *Registry) AcceptHeader(t reflect.Type) []string {
	t = orAny(t)
	var out []string
	seen := map[string]bool{}
	for _, c := range r.codecs {
		for _, mt := range c.ContentTypes() {
			if !c.CanDecode(t, mt) {
				continue
			}
			// charset and other parameters are not advertised
			b := BaseType(mt)
			if seen[b] {
				continue
			}
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Specificity(out[i]) > Specificity(out[j]) })
	return out
}
