// Package codegen produces short codes from numeric identifiers or random entropy.
package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the base62 character set used for all short codes.
// Digits sort before upper case before lower case; every character is safe
// in a URL path segment.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = uint64(len(Alphabet))

// ErrInvalidCharacter is returned when a code contains a character outside Alphabet.
var ErrInvalidCharacter = errors.New("invalid character in base62 code")

var charValue [256]int8

func init() {
	for i := range charValue {
		charValue[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		charValue[Alphabet[i]] = int8(i)
	}
}

// Encode converts n to its base62 representation with no padding.
func Encode(n uint64) string {
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 11)
	for n > 0 {
		buf = append(buf, Alphabet[n%base])
		n /= base
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// EncodePadded converts n to base62 left-padded with '0' to at least length characters.
func EncodePadded(n uint64, length int) string {
	s := Encode(n)
	if len(s) < length {
		s = strings.Repeat("0", length-len(s)) + s
	}
	return s
}

// Decode parses a base62 code back into the integer it encodes.
func Decode(code string) (uint64, error) {
	if code == "" {
		return 0, fmt.Errorf("%w: empty code", ErrInvalidCharacter)
	}
	var n uint64
	for i := 0; i < len(code); i++ {
		v := charValue[code[i]]
		if v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCharacter, code[i])
		}
		n = n*base + uint64(v)
	}
	return n, nil
}

// Valid reports whether code consists only of Alphabet characters and is
// within the given length bounds.
func Valid(code string, minLen, maxLen int) bool {
	if len(code) < minLen || len(code) > maxLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if charValue[code[i]] < 0 {
			return false
		}
	}
	return true
}
