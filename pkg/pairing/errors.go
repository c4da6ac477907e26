package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/backkem/jpake/pkg/crypto"
	"github.com/backkem/jpake/pkg/crypto/jpake"
	"github.com/backkem/jpake/pkg/poll"
	"github.com/backkem/jpake/pkg/relay"
)

// ErrorKind classifies why a pairing session aborted. The string value is what
// gets reported to the relay in X-KeyExchange-Log.
type ErrorKind string

const (
	// KindNetwork means the relay could not be reached.
	KindNetwork ErrorKind = "jpake.error.network"
	// KindChannel means the relay answered with an unexpected result.
	KindChannel ErrorKind = "jpake.error.channel"
	// KindTimeout means the peer's message did not arrive within the attempt budget.
	KindTimeout ErrorKind = "jpake.error.timeout"
	// KindWrongMessage means the channel held a message of the wrong round type.
	KindWrongMessage ErrorKind = "jpake.error.wrongmessage"
	// KindKeyMismatch means a proof or key confirmation failed, normally
	// because the PINs differ.
	KindKeyMismatch ErrorKind = "jpake.error.keymismatch"
	// KindNoData means the channel disappeared mid-exchange.
	KindNoData ErrorKind = "jpake.error.nodata"
	// KindUserAbort means the host cancelled the session.
	KindUserAbort ErrorKind = "jpake.error.userabort"
	// KindInvalid means a peer message or the PIN was malformed.
	KindInvalid ErrorKind = "jpake.error.invalid"
	// KindInternal means a local failure such as the random source failing.
	KindInternal ErrorKind = "jpake.error.internal"
)

// String returns the kind's wire value.
func (k ErrorKind) String() string { return string(k) }

// Errors.
var (
	ErrInvalidState   = errors.New("pairing: session already started")
	ErrInvalidPIN     = errors.New("pairing: invalid pin")
	ErrInvalidPayload = errors.New("pairing: payload is not valid JSON")
	ErrNoRelay        = errors.New("pairing: relay channel is required")

	errWrongMessage = errors.New("pairing: unexpected message type")
	errBadVersion   = errors.New("pairing: unsupported message version")
	errMalformed    = errors.New("pairing: malformed message")
)

// Error is returned by ReceiveNoPIN and SendWithPIN when the session aborts.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "pairing: aborted: " + string(e.Kind)
	}
	return fmt.Sprintf("pairing: aborted: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or "" if err is not a pairing
// abort.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// classify maps a step failure onto an ErrorKind. A missing channel means
// NODATA once this session has used it and CHANNEL before that.
func classify(err error, channelSeen bool) ErrorKind {
	var perr *Error
	switch {
	case errors.As(err, &perr):
		return perr.Kind
	case errors.Is(err, context.Canceled):
		return KindUserAbort
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, poll.ErrExhausted):
		return KindTimeout
	case errors.Is(err, relay.ErrNotFound):
		if channelSeen {
			return KindNoData
		}
		return KindChannel
	case errors.Is(err, relay.ErrNetwork):
		return KindNetwork
	case errors.Is(err, relay.ErrChannel), errors.Is(err, relay.ErrInvalidChannelID):
		return KindChannel
	case errors.Is(err, errWrongMessage), errors.Is(err, errBadVersion):
		return KindWrongMessage
	case errors.Is(err, jpake.ErrProofFailed),
		errors.Is(err, jpake.ErrInvalidSignerID),
		errors.Is(err, jpake.ErrDegenerateElement),
		errors.Is(err, jpake.ErrConfirmationFailed),
		errors.Is(err, crypto.ErrAuthFailed):
		return KindKeyMismatch
	case errors.Is(err, errMalformed), errors.Is(err, jpake.ErrInvalidEncoding),
		errors.Is(err, ErrInvalidPIN), errors.Is(err, ErrInvalidPayload):
		return KindInvalid
	default:
		return KindInternal
	}
}
