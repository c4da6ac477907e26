package pairing

import (
	"crypto/rand"
	"io"
	"strings"

	"github.com/backkem/jpake/pkg/relay"
)

const (
	// LengthSecret is the number of secret symbols at the start of a PIN.
	LengthSecret = 8

	// LengthPIN is the full PIN length: secret followed by channel id.
	LengthPIN = LengthSecret + relay.LengthChannelID

	// pinGroup is the group size used by FormatPIN.
	pinGroup = 4
)

// SecretAlphabet is the symbol set generated secrets are drawn from. It leaves
// out 0, 1, l and o, which are easily confused when read aloud or retyped.
const SecretAlphabet = relay.ChannelAlphabet

// NewSecret draws a random LengthSecret symbol secret. If random is nil,
// crypto/rand is used.
func NewSecret(random io.Reader) (string, error) {
	if random == nil {
		random = rand.Reader
	}
	var buf [LengthSecret]byte
	if _, err := io.ReadFull(random, buf[:]); err != nil {
		return "", err
	}
	// 32 symbols: masking keeps the distribution uniform.
	for i := range buf {
		buf[i] = SecretAlphabet[buf[i]&31]
	}
	return string(buf[:]), nil
}

// JoinPIN builds the PIN shown to the user.
func JoinPIN(secret, channel string) string {
	return secret + channel
}

// SplitPIN normalizes pin and splits it into its secret and channel id.
// Only the length is checked for the secret; the channel id must be valid.
func SplitPIN(pin string) (secret, channel string, err error) {
	pin = NormalizePIN(pin)
	if len(pin) != LengthPIN {
		return "", "", ErrInvalidPIN
	}
	secret, channel = pin[:LengthSecret], pin[LengthSecret:]
	if !relay.ValidChannelID(channel) {
		return "", "", ErrInvalidPIN
	}
	return secret, channel, nil
}

// NormalizePIN lowercases pin and drops spaces and dashes, undoing FormatPIN
// and common retyping noise.
func NormalizePIN(pin string) string {
	var b strings.Builder
	b.Grow(len(pin))
	for _, r := range strings.ToLower(pin) {
		switch r {
		case ' ', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatPIN groups pin for display, e.g. "abcd-efgh-ijkm".
func FormatPIN(pin string) string {
	var b strings.Builder
	for i := 0; i < len(pin); i += pinGroup {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+pinGroup, len(pin))
		b.WriteString(pin[i:end])
	}
	return b.String()
}
