// Package jsonwrapper contains a JSON unmarshaler.
package jsonwrapper

import (
	"bytes"
	"encoding/json"
	"io"
)

// Unmarshal decodes JSON.
// Unlike the standard package, unknown fields are rejected.
func Unmarshal(buf []byte, dest any) error {
	return Decode(bytes.NewReader(buf), dest)
}

// Decode decodes JSON from a reader.
// Trailing data is rejected.
func Decode(r io.Reader, dest any) error {
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()

	err := d.Decode(dest)
	if err != nil {
		return err
	}

	if d.More() {
		return errTrailingData
	}

	return nil
}
