package clicks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// IPHasher derives a stable, privacy-preserving identifier from a
// requester IP. The key comes from the deployment secret, so hashes from
// different deployments cannot be correlated and the raw IP cannot be
// recovered by enumerating the IPv4 space without the key.
type IPHasher struct {
	key []byte
}

// NewIPHasher creates a hasher keyed with the given secret.
func NewIPHasher(secret string) *IPHasher {
	return &IPHasher{key: []byte(secret)}
}

// Hash returns the hex HMAC-SHA256 of the IP.
func (h *IPHasher) Hash(ip string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
