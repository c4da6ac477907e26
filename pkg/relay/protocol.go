package relay

import (
	"errors"
	"strings"
)

// Header names.
const (
	HeaderClientID    = "X-KeyExchange-Id"
	HeaderReportLog   = "X-KeyExchange-Log"
	HeaderReportCID   = "X-KeyExchange-Cid"
	HeaderIfNoneMatch = "If-None-Match"
	HeaderETag        = "ETag"
)

// Routes.
const (
	PathNewChannel = "/new_channel"
	PathReport     = "/report"
)

const (
	// LengthClientID is the length of the X-KeyExchange-Id value.
	LengthClientID = 256

	// LengthChannelID is the length of a channel id.
	LengthChannelID = 4

	// ChannelAlphabet is the symbol set channel ids are drawn from.
	ChannelAlphabet = "23456789abcdefghijkmnpqrstuvwxyz"
)

// EmptyDocument is the content of a freshly allocated channel.
var EmptyDocument = []byte("{}")

// Errors.
var (
	// ErrNetwork is returned when the relay could not be reached.
	ErrNetwork = errors.New("relay: network error")

	// ErrChannel is returned when the relay answered with an unexpected status
	// or a malformed body.
	ErrChannel = errors.New("relay: channel error")

	// ErrNotModified is returned by Get when the document still has the given ETag.
	ErrNotModified = errors.New("relay: not modified")

	// ErrNotFound is returned by Get when the channel does not exist.
	ErrNotFound = errors.New("relay: channel not found")

	// ErrInvalidChannelID is returned for a channel id of the wrong shape.
	ErrInvalidChannelID = errors.New("relay: invalid channel id")
)

// ValidChannelID reports whether id has the length and symbols of a channel id.
func ValidChannelID(id string) bool {
	if len(id) != LengthChannelID {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(ChannelAlphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}
