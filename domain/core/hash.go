package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex digits, enough for log lines
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// FingerprintRows hashes a header and its rows in order. Cells are separated
// by the unit separator and rows by the record separator so that no cell
// content can shift a boundary.
func FingerprintRows(header []string, rows [][]string) Hash {
	var b strings.Builder
	b.WriteString(strings.Join(header, "\x1f"))
	for _, row := range rows {
		b.WriteByte('\x1e')
		b.WriteString(strings.Join(row, "\x1f"))
	}
	return NewHash([]byte(b.String()))
}
