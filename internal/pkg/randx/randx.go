/*
Package randx generates identifiers and random picks used by the relay.

Connection ids are UUID v4 strings. Palette picks use crypto/rand so that colours are not
predictable from process start.
*/
package randx

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// ConnectionID returns a new opaque identifier for a live connection.
func ConnectionID() string {
	return uuid.NewString()
}

// IsValidConnectionID reports whether id is a canonical UUID string as produced by ConnectionID.
func IsValidConnectionID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Intn returns a uniform random integer in [0, n). It returns 0 when n <= 1 or when the
// system random source fails.
func Intn(n int) int {
	if n <= 1 {
		return 0
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(num.Int64())
}

// Pick returns a random element of choices, or "" for an empty slice.
func Pick(choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[Intn(len(choices))]
}
