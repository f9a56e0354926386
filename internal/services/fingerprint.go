package services

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// FingerprintLength is the number of hex characters kept from the SHA256 digest (128 bits)
const FingerprintLength = 32

// Fingerprint derives the cache key for a text and its disambiguating context.
// The text is length-prefixed so no choice of bytes can move the text/context boundary.
func Fingerprint(text, context string) string {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(text)+len(context))
	buf = binary.AppendUvarint(buf, uint64(len(text)))
	buf = append(buf, text...)
	buf = append(buf, context...)
	hash := sha256.Sum256(buf)
	return hex.EncodeToString(hash[:])[:FingerprintLength]
}
