package jpake

import (
	"io"

	"github.com/backkem/jpake/pkg/crypto"
)

// SessionKeys are the symmetric keys derived from the J-PAKE key element.
//
//	EncryptionKey || ConfirmationKey = HKDF-SHA256(IKM=K, salt=nil, info=keyInfo, L=64)
type SessionKeys struct {
	EncryptionKey   []byte
	ConfirmationKey []byte
}

func deriveSessionKeys(keyElement []byte) (*SessionKeys, error) {
	okm, err := crypto.HKDFSHA256(keyElement, nil, []byte(keyInfo), 2*KeySize)
	if err != nil {
		return nil, err
	}
	return &SessionKeys{
		EncryptionKey:   okm[:KeySize],
		ConfirmationKey: okm[KeySize:],
	}, nil
}

// ConfirmationTag returns HMAC-SHA256(ConfirmationKey, label).
// Each side uses its own label so a reflected tag does not verify.
func (k *SessionKeys) ConfirmationTag(label string) []byte {
	return crypto.HMACSHA256(k.ConfirmationKey, []byte(label))
}

// VerifyConfirmationTag checks a peer's confirmation tag in constant time.
// Failure means the two sides derived different keys, normally because the
// secrets differ.
func (k *SessionKeys) VerifyConfirmationTag(label string, tag []byte) error {
	if !crypto.HMACEqual(k.ConfirmationTag(label), tag) {
		return ErrConfirmationFailed
	}
	return nil
}

// Seal encrypts and authenticates payload under EncryptionKey.
func (k *SessionKeys) Seal(random io.Reader, payload, aad []byte) ([]byte, error) {
	return crypto.Seal(random, k.EncryptionKey, payload, aad)
}

// Open reverses Seal. It fails with crypto.ErrAuthFailed on any mismatch.
func (k *SessionKeys) Open(sealed, aad []byte) ([]byte, error) {
	return crypto.Open(k.EncryptionKey, sealed, aad)
}

// Wipe zeroes both keys.
func (k *SessionKeys) Wipe() {
	crypto.Wipe(k.EncryptionKey)
	crypto.Wipe(k.ConfirmationKey)
}
