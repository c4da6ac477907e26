// Package crypto provides the symmetric primitives used by the pairing engine:
// hashing, HMAC, HKDF key derivation, authenticated encryption of the final
// payload and best-effort wiping of secrets.
//
// Group arithmetic and the zero-knowledge proofs live in the jpake subpackage.
package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
)

// Hash output sizes.
const (
	// SHA256LenBytes is the SHA-256 output length in bytes.
	SHA256LenBytes = 32

	// SHA512LenBytes is the SHA-512 output length in bytes.
	SHA512LenBytes = 64
)

// SHA256 computes the SHA-256 hash of a message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA512 computes the SHA-512 hash of the concatenation of parts.
// Used to map transcripts onto ristretto255 scalars, which take 64 uniform bytes.
func SHA512(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
