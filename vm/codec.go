package vm

import (
	"bytes"
	"fmt"
)

// Magic is the fixed prefix a decrypted binary image must begin with.
const Magic = "80JF34R9S"

// Obfuscate XORs data byte-wise with the repeating key and returns the
// result. An empty key is the identity. The transform is its own inverse,
// so the same call both encrypts and decrypts.
func Obfuscate(data []byte, key string) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// StripMagic verifies that a decrypted image starts with the magic token
// and returns the record stream that follows it. A mismatch rejects the
// image: no part of it may be executed.
func StripMagic(data []byte) ([]byte, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(Magic)) {
		return nil, fmt.Errorf("image magic mismatch (bad or missing key?)")
	}
	rest := trimmed[len(Magic):]
	if len(rest) > 0 && !isSpace(rest[0]) {
		return nil, fmt.Errorf("image magic mismatch (bad or missing key?)")
	}
	return rest, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
