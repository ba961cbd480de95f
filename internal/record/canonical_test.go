package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	r := Record{"b": "2", "a": "1", "c": json.Number("3")}

	data, err := Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2","c":3}`, string(data))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+1F600 sorts before U+FF61 by UTF-16 code units but after it by UTF-8 bytes.
	r := Record{"\U0001F600": "emoji", "\uFF61": "halfwidth"}

	data, err := Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":\"emoji\",\"\uFF61\":\"halfwidth\"}", string(data))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal(Record{"html": "<a & b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<a & b>"}`, string(data))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := Marshal(Record{"name": decomposed})
	require.NoError(t, err)
	b, err := Marshal(Record{"name": composed})
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalExact_KeepsCodePoints(t *testing.T) {
	decomposed := "e\u0301"

	data, err := MarshalExact(Record{"name": decomposed, "b": 1, "a": "<x>"})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"<x>\",\"b\":1,\"name\":\"e\u0301\"}", string(data))

	normalized, err := Marshal(Record{"name": decomposed})
	require.NoError(t, err)
	exact, err := MarshalExact(Record{"name": decomposed})
	require.NoError(t, err)
	assert.NotEqual(t, string(normalized), string(exact))
}

func TestMarshal_LineSeparatorsLiteral(t *testing.T) {
	data, err := Marshal(Record{"s": "a\u2028b"})
	require.NoError(t, err)
	assert.Equal(t, "{\"s\":\"a\u2028b\"}", string(data))

	data, err = Marshal(Record{"s": `a\u2028b`})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"a\\u2028b"}`, string(data))
}

func TestMarshal_Numbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"int", 12, "12"},
		{"int64", int64(-7), "-7"},
		{"whole float", 12.0, "12"},
		{"fraction", 1.5, "1.5"},
		{"json integer", json.Number("9007199254740993"), "9007199254740993"},
		{"json float", json.Number("2.50"), "2.5"},
		{"uint", uint32(4), "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestMarshal_RejectsNonFinite(t *testing.T) {
	_, err := MarshalValue(math.NaN())
	assert.Error(t, err)

	_, err = MarshalValue(math.Inf(1))
	assert.Error(t, err)
}

func TestMarshal_NestedAndNull(t *testing.T) {
	r := Record{
		"tags":   []any{"x", true, nil},
		"nested": map[string]any{"z": 1, "y": Record{"k": "v"}},
	}

	data, err := Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"nested":{"y":{"k":"v"},"z":1},"tags":["x",true,null]}`, string(data))
}

func TestMarshal_Struct(t *testing.T) {
	type project struct {
		ProjectFileNo string `json:"ProjectFileNo"`
		Floors        int    `json:"Floors"`
	}

	data, err := MarshalValue(project{ProjectFileNo: "5517C", Floors: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"Floors":3,"ProjectFileNo":"5517C"}`, string(data))
}

func TestMarshal_NilRecord(t *testing.T) {
	_, err := Marshal(nil)
	assert.Error(t, err)
}
