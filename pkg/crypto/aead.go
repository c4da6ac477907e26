package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD parameters.
const (
	// SymmetricKeySize is the XChaCha20-Poly1305 key size.
	SymmetricKeySize = chacha20poly1305.KeySize

	// NonceSize is the XChaCha20-Poly1305 nonce size. Nonces are random, the
	// extended size makes collisions negligible.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the Poly1305 authenticator size.
	TagSize = chacha20poly1305.Overhead
)

// Errors.
var (
	ErrInvalidKeySize     = errors.New("crypto: invalid key size")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrAuthFailed         = errors.New("crypto: message authentication failed")
)

// Seal encrypts and authenticates plaintext with XChaCha20-Poly1305.
// The output is nonce || ciphertext || tag; aad is authenticated but not
// included in the output.
//
// If random is nil, crypto/rand is used for the nonce.
func Seal(random io.Reader, key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidKeySize
	}
	if random == nil {
		random = rand.Reader
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(random, out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceSize], plaintext, aad), nil
}

// Open authenticates and decrypts a blob produced by Seal.
// It returns ErrAuthFailed when the key, aad or ciphertext do not match; no
// plaintext is returned in that case.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidKeySize
	}
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrCiphertextTooShort
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
