package pg

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Receipt payloads come straight from the backend and are not guaranteed to
// be clean text, so they are stored base64-encoded. The short format prefix
// keeps stored values self-describing should the encoding ever change.
const base64Prefix = "b64:"

// Encode encodes the value for storage in a text column.
func Encode(value []byte) string {
	return base64Prefix + base64.StdEncoding.EncodeToString(value)
}

// Decode decodes a value previously produced by Encode.
func Decode(value string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(value, base64Prefix)
	if !ok {
		return nil, errors.New("invalid encoded value format")
	}
	return base64.StdEncoding.DecodeString(encoded)
}
