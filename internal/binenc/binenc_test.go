package binenc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genLeaf(t *rapid.T, label string) any {
	switch rapid.IntRange(0, 7).Draw(t, label+"_kind") {
	case 0:
		return nil
	case 1:
		return rapid.Bool().Draw(t, label+"_bool")
	case 2:
		return float64(rapid.IntRange(-1_000_000, 1_000_000).Draw(t, label+"_num"))
	case 3:
		return rapid.String().Draw(t, label+"_str")
	case 4:
		mime := rapid.SampledFrom([]string{"", "image/png", "application/octet-stream", "text/plain"}).Draw(t, label+"_mime")
		return BlobValue(rapid.SliceOf(rapid.Byte()).Draw(t, label+"_blob"), mime)
	case 5:
		return ArrayBufferValue(rapid.SliceOf(rapid.Byte()).Draw(t, label+"_ab"))
	case 6:
		return TypedArrayValue(rapid.SliceOf(rapid.Byte()).Draw(t, label+"_u8"))
	default:
		return rapid.StringN(0, 8, -1).Draw(t, label+"_short")
	}
}

func genTree(t *rapid.T, depth int, label string) any {
	if depth <= 0 {
		return genLeaf(t, label)
	}
	switch rapid.IntRange(0, 2).Draw(t, label+"_shape") {
	case 0:
		n := rapid.IntRange(0, 4).Draw(t, label+"_len")
		out := make([]any, n)
		for i := range out {
			out[i] = genTree(t, depth-1, fmt.Sprintf("%s_%d", label, i))
		}
		return out
	case 1:
		n := rapid.IntRange(0, 4).Draw(t, label+"_len")
		out := make(map[string]any, n)
		for i := 0; i < n; i++ {
			key := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, fmt.Sprintf("%s_key%d", label, i))
			out[key] = genTree(t, depth-1, fmt.Sprintf("%s_%d", label, i))
		}
		return out
	default:
		return genLeaf(t, label)
	}
}

func treeEqual(a, b any) bool {
	switch at := a.(type) {
	case Value:
		bt, ok := b.(Value)
		return ok && at.Equal(bt)
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !treeEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			w, ok := bt[k]
			if !ok || !treeEqual(v, w) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Feature: binary payloads, Property 1: decode(encode(v)) is byte-identical.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := genTree(t, 3, "root")

		enc, err := Encode(tree)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !treeEqual(tree, dec) {
			t.Fatalf("Decode(Encode(v)) = %#v; want %#v", dec, tree)
		}
	})
}

// Feature: binary payloads, Property 2: the encoded form survives a JSON hop.
func TestRoundTripThroughJSONProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := genTree(t, 3, "root")

		enc, err := Encode(tree)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		raw, err := json.Marshal(enc)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		var back any
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		dec, err := Decode(back)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !treeEqual(tree, dec) {
			t.Fatalf("round trip through JSON = %#v; want %#v", dec, tree)
		}
	})
}

func TestEncodeTaggedShape(t *testing.T) {
	enc, err := Encode(map[string]any{
		"avatar": BlobValue([]byte{0x89, 'P', 'N', 'G'}, "image/png"),
		"buf":    ArrayBufferValue([]byte{1, 2, 3}),
		"view":   TypedArrayValue([]byte{4, 5}),
		"name":   "x",
	})
	require.NoError(t, err)

	m := enc.(map[string]any)
	assert.Equal(t, map[string]any{"__type": "Blob", "data": "iVBORw==", "type": "image/png"}, m["avatar"])
	assert.Equal(t, map[string]any{"__type": "ArrayBuffer", "data": "AQID"}, m["buf"])
	assert.Equal(t, map[string]any{"__type": "Uint8Array", "data": "BAU="}, m["view"])
	assert.Equal(t, "x", m["name"])
}

func TestDecodeAcceptsDataURL(t *testing.T) {
	dec, err := Decode(map[string]any{
		"__type": "Blob",
		"data":   "data:image/gif;base64,R0lG",
		"type":   "image/gif",
	})
	require.NoError(t, err)

	v, ok := dec.(Value)
	require.True(t, ok, "Decode() = %T; want Value", dec)
	assert.Equal(t, Blob, v.Kind())
	assert.Equal(t, []byte("GIF"), v.Bytes())
	assert.Equal(t, "image/gif", v.MimeType())
}

func TestDecodeDataURLWithoutTypeUsesHeaderMime(t *testing.T) {
	dec, err := Decode(map[string]any{"__type": "Blob", "data": "data:text/plain;base64,aGk="})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", dec.(Value).MimeType())
}

func TestDecodeInvalidBase64(t *testing.T) {
	_, err := Decode([]any{map[string]any{"__type": "ArrayBuffer", "data": "!!not base64!!"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPayload), "Decode() error = %v; want ErrInvalidPayload", err)
}

func TestDecodeLeavesUnknownTagsAlone(t *testing.T) {
	in := map[string]any{"__type": "Date", "data": "2024-01-01"}
	dec, err := Decode(in)
	require.NoError(t, err)
	assert.Equal(t, in, dec)
}

func TestOnlyBlobKeepsMime(t *testing.T) {
	enc, err := Encode(TypedArrayValue([]byte{1}))
	require.NoError(t, err)
	_, hasType := enc.(map[string]any)["type"]
	assert.False(t, hasType)
}

func TestValueMarshalJSON(t *testing.T) {
	raw, err := json.Marshal([]any{BlobValue([]byte("hi"), "text/plain"), PlainValue(map[string]any{"n": 1})})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"__type":"Blob","data":"aGk=","type":"text/plain"},{"n":1}]`, string(raw))
}

func TestCloneIsDeep(t *testing.T) {
	orig := map[string]any{"list": []any{"a", map[string]any{"b": 1.0}}}
	cp := Clone(orig).(map[string]any)
	cp["list"].([]any)[1].(map[string]any)["b"] = 2.0

	assert.Equal(t, 1.0, orig["list"].([]any)[1].(map[string]any)["b"])
}

func TestBytesReturnsCopy(t *testing.T) {
	v := ArrayBufferValue([]byte{1, 2})
	b := v.Bytes()
	b[0] = 9
	assert.Equal(t, []byte{1, 2}, v.Bytes())
}
