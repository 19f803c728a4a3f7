package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingEncoder_Lines(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewStreamingEncoder(&buf, false)
	require.NoError(t, err)

	require.NoError(t, enc.Encode(map[string]int{"a": 1}))
	require.NoError(t, enc.Encode(map[string]string{"b": "<x>"}))
	require.NoError(t, enc.Close())

	assert.Equal(t, "{\"a\":1}\n{\"b\":\"<x>\"}\n", buf.String())
	assert.Equal(t, int64(2), enc.Count())
}

func TestStreamingEncoder_Array(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewStreamingEncoder(&buf, true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(i))
	}
	require.NoError(t, enc.Close())

	var got []int
	require.NoError(t, Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []int{0, 1, 2}, got)

	buf.Reset()
	empty, err := NewStreamingEncoder(&buf, true)
	require.NoError(t, err)
	require.NoError(t, empty.Close())
	assert.Equal(t, "[]", buf.String())
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(struct {
		Total int64 `json:"total"`
	}{Total: 7}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"total\": 7\n}", string(data))
}
