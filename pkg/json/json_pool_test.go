package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalNumbersKeepsIntegers(t *testing.T) {
	var attrs map[string]interface{}
	require.NoError(t, UnmarshalNumbers([]byte(`{"training_label": 9007199254740993, "w": 0.5}`), &attrs))

	label, ok := attrs["training_label"].(Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", label.String())

	n, err := label.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), n)

	w, ok := attrs["w"].(Number)
	require.True(t, ok)
	f, err := w.Float64()
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
}

func TestUnmarshalUsesFloats(t *testing.T) {
	var attrs map[string]interface{}
	require.NoError(t, Unmarshal([]byte(`{"n": 3}`), &attrs))
	assert.Equal(t, float64(3), attrs["n"])
}

func TestMarshalToBuffer(t *testing.T) {
	buf, err := MarshalToBuffer(map[string]string{"html": "<b>"})
	require.NoError(t, err)
	defer PutBuffer(buf)

	assert.Equal(t, "{\"html\":\"<b>\"}\n", buf.String())
}

func TestMarshalToWriter(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, MarshalToWriter(&out, []int{1, 2}))
	assert.Equal(t, "[1,2]\n", out.String())
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
