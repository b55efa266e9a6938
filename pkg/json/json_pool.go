// Package json wraps goccy/go-json with pooled buffers and decoders that
// keep numbers exact. Container attribute sidecars, Avro schemas and the
// export manifest all go through it.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is a JSON number kept in its literal form
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetEncoder returns an encoder writing to w with HTML escaping disabled
func GetEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// GetDecoder returns a decoder that yields Number for numeric values, so
// integers larger than 2^53 survive decoding unchanged
func GetDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// UnmarshalNumbers decodes data like Unmarshal but keeps numbers as Number
func UnmarshalNumbers(data []byte, v interface{}) error {
	return GetDecoder(bytes.NewReader(data)).Decode(v)
}

// MarshalIndent is a replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalToWriter marshals v directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	return GetEncoder(w).Encode(v)
}

// MarshalToBuffer marshals v to a pooled buffer; the caller returns it
// with PutBuffer
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()
	if err := GetEncoder(buf).Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}
	return buf, nil
}
