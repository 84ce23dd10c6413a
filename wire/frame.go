// Package wire defines the transport independent frames exchanged by the
// invoker and its callers.
//
// A request stream is one Start frame followed by any number of Data frames
// tagged with an argument index. A response stream is made of Data frames
// tagged with a result index. Ordering only matters within one channel.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates frame variants.
type Kind string

const (
	KindStart   Kind = "start"
	KindData    Kind = "data"
	KindInvalid Kind = "invalid"
)

// Header names that are carried by dedicated frame fields and may not appear
// in the auxiliary header map.
const (
	HeaderContentType = "Content-Type"
	HeaderRiffInput   = "RiffInput"
	HeaderRiffOutput  = "RiffOutput"
)

// ReservedHeaders lists the header keys auxiliary headers must not use.
var ReservedHeaders = []string{HeaderContentType, HeaderRiffInput, HeaderRiffOutput}

var (
	// ErrEmptyFrame is returned by Validate for a frame with no variant set.
	ErrEmptyFrame = errors.New("wire: frame has neither start nor data")
	// ErrAmbiguousFrame is returned by Validate for a frame with both variants set.
	ErrAmbiguousFrame = errors.New("wire: frame has both start and data")
)

// StartFrame opens a request stream. Entry i lists the content types the
// caller accepts for output channel i, most specific first.
type StartFrame struct {
	ExpectedContentTypes [][]string `json:"expectedContentTypes"`
}

// DataFrame carries one encoded value of one channel.
type DataFrame struct {
	Channel     int               `json:"channel"`
	ContentType string            `json:"contentType"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     []byte            `json:"payload,omitempty"`
}

// Frame is the only physical message. Exactly one of Start or Data is set.
type Frame struct {
	Start *StartFrame `json:"start,omitempty"`
	Data  *DataFrame  `json:"data,omitempty"`
}

// NewStart builds a start frame from per output channel accept lists.
func NewStart(accept [][]string) *Frame {
	return &Frame{Start: &StartFrame{ExpectedContentTypes: accept}}
}

// NewData builds a data frame.
func NewData(channel int, contentType string, headers map[string]string, payload []byte) *Frame {
	return &Frame{Data: &DataFrame{Channel: channel, ContentType: contentType, Headers: headers, Payload: payload}}
}

// Kind reports which variant the frame holds.
func (f *Frame) Kind() Kind {
	switch {
	case f == nil:
		return KindInvalid
	case f.Start != nil && f.Data == nil:
		return KindStart
	case f.Data != nil && f.Start == nil:
		return KindData
	default:
		return KindInvalid
	}
}

// Validate checks the structural rules of a single frame. Sequence rules
// (start first, channel bounds) belong to the invoker.
func (f *Frame) Validate() error {
	if f == nil || (f.Start == nil && f.Data == nil) {
		return ErrEmptyFrame
	}
	if f.Start != nil && f.Data != nil {
		return ErrAmbiguousFrame
	}
	if f.Data != nil {
		return f.Data.Validate()
	}
	return nil
}

// Validate checks the channel index and auxiliary headers of a data frame.
func (d *DataFrame) Validate() error {
	if d.Channel < 0 {
		return fmt.Errorf("wire: negative channel index %d", d.Channel)
	}
	for k := range d.Headers {
		if IsReservedHeader(k) {
			return fmt.Errorf("wire: header %q is reserved", k)
		}
	}
	return nil
}

// IsReservedHeader reports whether key collides with a dedicated frame field.
func IsReservedHeader(key string) bool {
	for _, r := range ReservedHeaders {
		if strings.EqualFold(r, key) {
			return true
		}
	}
	return false
}

// Channels returns the number of output channels the start frame declares.
func (s *StartFrame) Channels() int {
	if s == nil {
		return 0
	}
	return len(s.ExpectedContentTypes)
}

// Accept returns the accepted content types for an output channel. An empty
// list accepts anything.
func (s *StartFrame) Accept(channel int) []string {
	if s == nil || channel < 0 || channel >= len(s.ExpectedContentTypes) || len(s.ExpectedContentTypes[channel]) == 0 {
		return []string{"*/*"}
	}
	return s.ExpectedContentTypes[channel]
}
