// Package json wraps goccy/go-json with the encoder settings used across
// mongosplit: HTML escaping off, one value per line for streams.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal encodes v
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent encodes v with indentation
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder writing to w without HTML escaping
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// StreamingEncoder writes a sequence of values either as newline-delimited
// JSON or as a single JSON array.
type StreamingEncoder struct {
	writer  io.Writer
	encoder *gojson.Encoder
	isArray bool
	count   int64
}

// NewStreamingEncoder creates a streaming encoder. When isArray is set the
// opening bracket is written immediately and Close writes the closing one.
func NewStreamingEncoder(w io.Writer, isArray bool) (*StreamingEncoder, error) {
	se := &StreamingEncoder{
		writer:  w,
		encoder: NewEncoder(w),
		isArray: isArray,
	}
	if isArray {
		if _, err := w.Write([]byte{'['}); err != nil {
			return nil, err
		}
	}
	return se, nil
}

// Encode writes one value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray && se.count > 0 {
		if _, err := se.writer.Write([]byte{','}); err != nil {
			return err
		}
	}
	if err := se.encoder.Encode(v); err != nil {
		return err
	}
	se.count++
	return nil
}

// Count returns the number of values written
func (se *StreamingEncoder) Count() int64 {
	return se.count
}

// Close finalizes the stream. It does not close the underlying writer.
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		_, err := se.writer.Write([]byte{']'})
		return err
	}
	return nil
}
