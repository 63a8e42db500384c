package store

import (
	"crypto/rand"
	"encoding/hex"
)

// NewAccountID returns a 24-character hex account id. Account ids keep the
// 24-hex shape validated at the API boundary; other records use UUIDs.
func NewAccountID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
