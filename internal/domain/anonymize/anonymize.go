// Package anonymize turns client network addresses into opaque tokens.
//
// The transform is keyed BLAKE2b-256 (MAC mode). Without the key the token
// space cannot be enumerated from the public IPv4/IPv6 address space.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TokenLength is the number of hex characters in a token.
const TokenLength = 32

// Hasher derives tokens under one secret. Safe for concurrent use.
type Hasher struct {
	key [sha256.Size]byte
}

// New returns a Hasher keyed by secret. Secrets of any length are accepted;
// the MAC key is SHA-256(secret).
func New(secret string) *Hasher {
	return &Hasher{key: sha256.Sum256([]byte(secret))}
}

// Hash returns the TokenLength-character token for rawIP. An empty rawIP is
// hashed as the empty string.
func (h *Hasher) Hash(rawIP string) string {
	// New256 only fails for keys longer than 64 bytes.
	mac, err := blake2b.New256(h.key[:])
	if err != nil {
		panic(err)
	}
	_, _ = mac.Write([]byte(rawIP))
	return hex.EncodeToString(mac.Sum(nil))[:TokenLength]
}

// Hash is the one-shot form of New(secret).Hash(rawIP).
func Hash(rawIP, secret string) string {
	return New(secret).Hash(rawIP)
}
