// Package binenc converts binary payloads found in page storage into a
// transport-safe tagged form and back.
//
// A stored value tree is made of nil, bool, numbers, strings, []any and
// map[string]any. Binary leaves are represented by Value on the Go side and by
// a tagged record on the wire:
//
//	{"__type": "Blob", "data": "<base64>", "type": "image/png"}
//	{"__type": "ArrayBuffer", "data": "<base64>"}
//	{"__type": "Uint8Array", "data": "<base64>"}
package binenc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	Plain Kind = iota
	Blob
	ArrayBuffer
	TypedArray
)

// Wire tags used in the "__type" field.
const (
	TagBlob        = "Blob"
	TagArrayBuffer = "ArrayBuffer"
	TagTypedArray  = "Uint8Array"
)

const (
	fieldType = "__type"
	fieldData = "data"
	fieldMime = "type"
)

var ErrInvalidPayload = errors.New("binenc: invalid payload")

func (k Kind) String() string {
	switch k {
	case Blob:
		return TagBlob
	case ArrayBuffer:
		return TagArrayBuffer
	case TypedArray:
		return TagTypedArray
	default:
		return "Plain"
	}
}

// Value is either a plain value or one of the three binary kinds.
type Value struct {
	kind  Kind
	data  []byte
	mime  string
	plain any
}

func PlainValue(v any) Value { return Value{kind: Plain, plain: v} }

// BlobValue is the only binary kind that keeps a MIME type.
func BlobValue(data []byte, mimeType string) Value {
	return Value{kind: Blob, data: cloneBytes(data), mime: mimeType}
}

func ArrayBufferValue(data []byte) Value {
	return Value{kind: ArrayBuffer, data: cloneBytes(data)}
}

func TypedArrayValue(data []byte) Value {
	return Value{kind: TypedArray, data: cloneBytes(data)}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) Bytes() []byte    { return cloneBytes(v.data) }
func (v Value) MimeType() string { return v.mime }
func (v Value) Plain() any       { return v.plain }
func (v Value) IsBinary() bool   { return v.kind != Plain }

// Equal reports whether two values carry the same kind, bytes and MIME type.
// Plain values are never equal through this method.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.kind == Plain {
		return false
	}
	return v.mime == o.mime && string(v.data) == string(o.data)
}

// MarshalJSON writes binary values as tagged records and plain values as-is.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == Plain {
		enc, err := Encode(v.plain)
		if err != nil {
			return nil, err
		}
		return json.Marshal(enc)
	}
	return json.Marshal(v.tagged())
}

func (v Value) tagged() map[string]any {
	rec := map[string]any{
		fieldType: v.kind.String(),
		fieldData: base64.StdEncoding.EncodeToString(v.data),
	}
	if v.kind == Blob {
		rec[fieldMime] = v.mime
	}
	return rec
}

// Encode returns a copy of v with every binary Value replaced by its tagged
// record. Plain Values are unwrapped. Raw []byte leaves are treated as
// ArrayBuffer payloads.
func Encode(v any) (any, error) {
	switch t := v.(type) {
	case Value:
		if t.kind == Plain {
			return Encode(t.plain)
		}
		return t.tagged(), nil
	case *Value:
		if t == nil {
			return nil, nil
		}
		return Encode(*t)
	case []byte:
		return ArrayBufferValue(t).tagged(), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			enc, err := Encode(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			enc, err := Encode(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	default:
		return v, nil
	}
}

// Decode is the inverse of Encode: tagged records become binary Values and
// everything else is copied through.
func Decode(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			dec, err := Decode(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if kind, ok := taggedKind(t); ok {
			return decodeTagged(kind, t)
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			dec, err := Decode(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = dec
		}
		return out, nil
	default:
		return v, nil
	}
}

func taggedKind(m map[string]any) (Kind, bool) {
	tag, ok := m[fieldType].(string)
	if !ok {
		return Plain, false
	}
	if _, ok := m[fieldData]; !ok {
		return Plain, false
	}
	switch tag {
	case TagBlob:
		return Blob, true
	case TagArrayBuffer:
		return ArrayBuffer, true
	case TagTypedArray:
		return TypedArray, true
	}
	return Plain, false
}

func decodeTagged(kind Kind, m map[string]any) (Value, error) {
	raw, ok := m[fieldData].(string)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s data is not a string", ErrInvalidPayload, kind)
	}
	mime, _ := m[fieldMime].(string)

	// Data URLs come from exports of the browser extension.
	if strings.HasPrefix(raw, "data:") {
		header, body, found := strings.Cut(raw, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return Value{}, fmt.Errorf("%w: %s data url is not base64", ErrInvalidPayload, kind)
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		raw = body
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	switch kind {
	case Blob:
		return Value{kind: Blob, data: data, mime: mime}, nil
	case ArrayBuffer:
		return Value{kind: ArrayBuffer, data: data}, nil
	default:
		return Value{kind: TypedArray, data: data}, nil
	}
}

// Clone deep-copies a value tree. Values are immutable and copied by value.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Clone(item)
		}
		return out
	case []byte:
		return cloneBytes(t)
	case Value:
		if t.kind == Plain {
			return PlainValue(Clone(t.plain))
		}
		return Value{kind: t.kind, data: cloneBytes(t.data), mime: t.mime}
	default:
		return v
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
