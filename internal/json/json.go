// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json provides the JSON codec used throughout the module, so that
// the encoder/decoder can be swapped in one place.
package json

import (
	"github.com/segmentio/encoding/json"
)

// RawMessage is an alias so callers don't need to import encoding/json
// alongside this package.
type RawMessage = json.RawMessage

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	// Struct field names are matched case-sensitively.
	_, err := json.Parse(data, v, json.DontMatchCaseInsensitiveStructFields)
	return err
}

func NewEncoder(w interface{ Write([]byte) (int, error) }) *json.Encoder {
	return json.NewEncoder(w)
}

func NewDecoder(r interface{ Read([]byte) (int, error) }) *json.Decoder {
	return json.NewDecoder(r)
}
