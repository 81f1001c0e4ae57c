package model

import "github.com/oklog/ulid/v2"

// tokenAlphabet encodes one nibble per character and contains no digits.
const tokenAlphabet = "abcdefghijklmnop"

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewToken returns a fresh ULID rendered without any ASCII digits. It is used
// where the downstream MetaIO reader cannot cope with numbers in file names.
func NewToken() string {
	id := ulid.Make()
	buf := make([]byte, 0, len(id)*2)
	for _, b := range id {
		buf = append(buf, tokenAlphabet[b>>4], tokenAlphabet[b&0x0f])
	}
	return string(buf)
}
