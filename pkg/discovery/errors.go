package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an already-started advertisement.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when stopping an advertisement that was not started.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrInvalidInstanceName is returned when the instance name is empty or
	// longer than a DNS label.
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name")

	// ErrInvalidPort is returned when the port number is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrNoAddresses is returned when a discovered relay has no usable address.
	ErrNoAddresses = errors.New("discovery: no usable addresses")

	// ErrRelayNotFound is returned when no relay answered before the timeout.
	ErrRelayNotFound = errors.New("discovery: relay not found")

	// ErrInvalidTXTRecord is returned when a TXT record has invalid format.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")
)
