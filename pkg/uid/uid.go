// Package uid generates short random identifiers for catalog records.
//
// Identifiers are 8 random bytes encoded over a 57-symbol alphabet chosen
// for legibility (no 0/O, 1/l/I). The collision probability for n entries
// is approximately n^2/(2*256^8); for n=10^6 that is ~2.6e-8.
package uid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// alphabet is base 57, ordered so that encoded ids sort consistently.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const (
	uidBytes = 8

	// Length is the fixed length of an encoded identifier:
	// ceil(log_57(256^8)) = 11.
	Length = 11
)

// New returns a fresh random identifier.
func New() string {
	var buf [uidBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("uid: %v", err))
	}
	return encode(binary.BigEndian.Uint64(buf[:]))
}

// Valid reports whether s has the shape of an identifier produced by New.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if indexOf(s[i]) < 0 {
			return false
		}
	}
	return true
}

func encode(x uint64) string {
	var out [Length]byte
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[x%uint64(len(alphabet))]
		x /= uint64(len(alphabet))
	}
	return string(out[:])
}

func indexOf(c byte) int {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return i
		}
	}
	return -1
}
