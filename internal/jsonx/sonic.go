// Package jsonx provides JSON serialization for persisted dialogue records
// using Sonic, with helpers for validating record shape before decoding.
package jsonx

import (
	"bytes"
	"errors"
	"io"

	"github.com/bytedance/sonic"
)

// ErrNotObject is returned by UnmarshalObject when the payload is valid JSON
// whose top-level value is not an object.
var ErrNotObject = errors.New("jsonx: top-level value is not an object")

var api = sonic.Config{
	EscapeHTML:       false,
	UseInt64:         true,
	CompactMarshaler: true,
}.Froze()

// Marshal returns the JSON encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal parses data into v.
func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}

// UnmarshalObject decodes data into v only if data holds a JSON object.
// Persisted records are always objects; anything else (arrays, scalars,
// null, truncated writes) is treated as corrupt by callers.
func UnmarshalObject(data []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrNotObject
	}
	if !api.Valid(trimmed) {
		return errors.New("jsonx: invalid JSON document")
	}
	return api.Unmarshal(trimmed, v)
}

// Decode reads all of r and decodes it into v.
func Decode(r io.Reader, v interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return api.Unmarshal(data, v)
}

// Encode writes the JSON encoding of v to w followed by a newline.
func Encode(w io.Writer, v interface{}) error {
	data, err := api.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Valid reports whether data is a valid JSON document.
func Valid(data []byte) bool {
	return api.Valid(data)
}
