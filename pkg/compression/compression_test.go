package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	payload := []byte(strings.Repeat(`{"_id":1,"value":1}`+"\n", 500))

	for _, algo := range []Algorithm{None, Gzip, Snappy, S2, LZ4, Zstd} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(algo), func(t *testing.T) {
				var buf bytes.Buffer
				w, err := NewWriter(&buf, algo, level)
				require.NoError(t, err)

				// written in pieces, as the exporter does
				for _, line := range bytes.SplitAfter(payload, []byte("\n")) {
					_, err := w.Write(line)
					require.NoError(t, err)
				}
				require.NoError(t, w.Close())

				if algo != None {
					assert.Less(t, buf.Len(), len(payload))
				}

				r, err := NewReader(&buf, algo)
				require.NoError(t, err)
				defer r.Close()

				got, err := io.ReadAll(r)
				require.NoError(t, err)
				assert.Equal(t, payload, got)
			})
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		ext  string
	}{
		{"", None, ""},
		{"none", None, ""},
		{"GZIP", Gzip, ".gz"},
		{" zstd ", Zstd, ".zst"},
		{"lz4", LZ4, ".lz4"},
		{"snappy", Snappy, ".sz"},
		{"s2", S2, ".s2"},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ext, got.Extension())
	}

	_, err := ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewWriter(io.Discard, Algorithm("brotli"), Default)
	assert.Error(t, err)
}
