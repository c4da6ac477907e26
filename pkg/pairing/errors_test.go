package pairing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/backkem/jpake/pkg/crypto"
	"github.com/backkem/jpake/pkg/crypto/jpake"
	"github.com/backkem/jpake/pkg/poll"
	"github.com/backkem/jpake/pkg/relay"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		seen bool
		want ErrorKind
	}{
		{"explicit kind", &Error{Kind: KindChannel, Err: errors.New("x")}, true, KindChannel},
		{"cancelled", context.Canceled, true, KindUserAbort},
		{"deadline", fmt.Errorf("%w: get", context.DeadlineExceeded), true, KindTimeout},
		{"exhausted", poll.ErrExhausted, true, KindTimeout},
		{"not found after use", relay.ErrNotFound, true, KindNoData},
		{"not found before use", relay.ErrNotFound, false, KindChannel},
		{"network", fmt.Errorf("%w: GET /abcd: refused", relay.ErrNetwork), true, KindNetwork},
		{"bad status", fmt.Errorf("%w: 500", relay.ErrChannel), true, KindChannel},
		{"wrong type", fmt.Errorf("%w: sender2", errWrongMessage), true, KindWrongMessage},
		{"wrong version", errBadVersion, true, KindWrongMessage},
		{"proof", jpake.ErrProofFailed, true, KindKeyMismatch},
		{"signer", jpake.ErrInvalidSignerID, true, KindKeyMismatch},
		{"confirmation", jpake.ErrConfirmationFailed, true, KindKeyMismatch},
		{"aead", crypto.ErrAuthFailed, true, KindKeyMismatch},
		{"encoding", jpake.ErrInvalidEncoding, true, KindInvalid},
		{"malformed", fmt.Errorf("%w: gx1", errMalformed), true, KindInvalid},
		{"pin", ErrInvalidPIN, false, KindInvalid},
		{"other", errors.New("entropy source failed"), true, KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err, tc.seen); got != tc.want {
				t.Errorf("classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindTimeout})
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("KindOf = %q, want %q", got, KindTimeout)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q", got)
	}
	if KindTimeout.String() != "jpake.error.timeout" {
		t.Errorf("String = %q", KindTimeout.String())
	}
}
