package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/jpake/pkg/poll"
	"github.com/backkem/jpake/pkg/relay"
	"github.com/pion/logging"
)

// Defaults for Config.
const (
	DefaultPollInterval     = time.Second
	DefaultMaxTries         = 10
	DefaultFirstMsgMaxTries = 300
	DefaultCleanupTimeout   = 5 * time.Second
)

// Role is the side a client plays in a pairing.
type Role int

const (
	// RoleReceiver shows the PIN and receives the payload.
	RoleReceiver Role = iota
	// RoleSender enters the PIN and sends the payload.
	RoleSender
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleReceiver:
		return "Receiver"
	case RoleSender:
		return "Sender"
	default:
		return "Unknown"
	}
}

func (r Role) signerID() string {
	if r == RoleSender {
		return signerSender
	}
	return signerReceiver
}

func (r Role) peer() Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

// State is the pairing session state.
type State int

const (
	StateIdle State = iota
	StateAwaitingPeerRound1
	StateAwaitingPeerRound2
	StateAwaitingPeerRound3
	StateAwaitingAck // Sender: payload sent, waiting for the receiver to take it
	StateComplete
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingPeerRound1:
		return "AwaitingPeerRound1"
	case StateAwaitingPeerRound2:
		return "AwaitingPeerRound2"
	case StateAwaitingPeerRound3:
		return "AwaitingPeerRound3"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateComplete:
		return "Complete"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is Complete or Aborted.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted
}

// Channel is the relay access a pairing session needs. *relay.Client
// implements it.
type Channel interface {
	Allocate(ctx context.Context) (string, error)
	Put(ctx context.Context, channel string, doc []byte) (string, error)
	Get(ctx context.Context, channel, etag string) ([]byte, string, error)
	Clear(ctx context.Context, channel string) error
	Report(ctx context.Context, channel, outcome string)
}

var _ Channel = (*relay.Client)(nil)

// Controller is implemented by the host application.
//
// DisplayPIN is called on the receiver once its first message is on the relay.
// Exactly one of OnComplete and OnAbort is called per started session.
// Callbacks run on the session goroutine; Abort may be called from inside them.
type Controller interface {
	DisplayPIN(pin string)
	OnComplete(payload json.RawMessage)
	OnAbort(kind ErrorKind)
}

// ControllerFuncs adapts plain functions to a Controller. Nil fields are
// skipped.
type ControllerFuncs struct {
	DisplayPINFunc func(pin string)
	OnCompleteFunc func(payload json.RawMessage)
	OnAbortFunc    func(kind ErrorKind)
}

func (f ControllerFuncs) DisplayPIN(pin string) {
	if f.DisplayPINFunc != nil {
		f.DisplayPINFunc(pin)
	}
}

func (f ControllerFuncs) OnComplete(payload json.RawMessage) {
	if f.OnCompleteFunc != nil {
		f.OnCompleteFunc(payload)
	}
}

func (f ControllerFuncs) OnAbort(kind ErrorKind) {
	if f.OnAbortFunc != nil {
		f.OnAbortFunc(kind)
	}
}

// Config configures a Client.
type Config struct {
	// Relay is the channel store. Required.
	Relay Channel

	// Controller receives the PIN and the outcome. If nil, callbacks are
	// dropped and the outcome is only visible through the return values.
	Controller Controller

	// PollInterval is the delay between GETs while waiting for the peer.
	PollInterval time.Duration

	// MaxTries is the attempt budget for each wait after the first.
	MaxTries int

	// FirstMsgMaxTries is the receiver's attempt budget while waiting for the
	// sender's first message. It covers the time a human needs to enter the PIN.
	FirstMsgMaxTries int

	// CleanupTimeout bounds the clear and report requests made on exit.
	CleanupTimeout time.Duration

	// Rand is used for the secret and the J-PAKE exponents.
	// If nil, crypto/rand is used.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns a Config with the default timing. Relay and
// Controller still need to be set.
func DefaultConfig() Config {
	return Config{
		PollInterval:     DefaultPollInterval,
		MaxTries:         DefaultMaxTries,
		FirstMsgMaxTries: DefaultFirstMsgMaxTries,
		CleanupTimeout:   DefaultCleanupTimeout,
	}
}

// Client runs one pairing session over a relay. A Client is single-use:
// after ReceiveNoPIN or SendWithPIN returns, create a new one.
type Client struct {
	config Config
	poller poll.Scheduler
	log    logging.LeveledLogger

	mu        sync.Mutex
	role      Role
	state     State
	started   bool
	terminal  bool
	abortKind ErrorKind
	err       error
	channel   string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a pairing client.
func NewClient(config Config) (*Client, error) {
	if config.Relay == nil {
		return nil, ErrNoRelay
	}
	defaults := DefaultConfig()
	if config.Controller == nil {
		config.Controller = ControllerFuncs{}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxTries <= 0 {
		config.MaxTries = defaults.MaxTries
	}
	if config.FirstMsgMaxTries <= 0 {
		config.FirstMsgMaxTries = defaults.FirstMsgMaxTries
	}
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = defaults.CleanupTimeout
	}

	c := &Client{
		config: config,
		poller: poll.Scheduler{Interval: config.PollInterval},
		state:  StateIdle,
		done:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("pairing")
		c.poller.Notify = func(err error, wait time.Duration) {
			c.log.Tracef("channel not ready (%v), retrying in %v", err, wait)
		}
	}
	return c, nil
}

// ReceiveNoPIN runs the receiving side: it allocates a channel, shows the PIN
// through Controller.DisplayPIN and waits for a sender to deliver its payload.
// It blocks until the session ends and returns nil on completion or an *Error
// on abort. It returns ErrInvalidState if the client was already used.
func (c *Client) ReceiveNoPIN(ctx context.Context) error {
	ctx, err := c.start(ctx, RoleReceiver)
	if err != nil {
		return err
	}
	return c.run(ctx, newSession(RoleReceiver), receiverFlow())
}

// SendWithPIN runs the sending side: it joins the channel named by pin and
// delivers payload, encrypted under the key agreed with the receiver. It blocks
// until the receiver has taken the payload or the session aborts.
//
// Completion means the channel was consumed: the receiver cleared it or the
// relay dropped it after the last read. It does not prove the receiver accepted
// the payload; a receiver that fails to decrypt it reports KEYMISMATCH on its
// own side only.
func (c *Client) SendWithPIN(ctx context.Context, pin string, payload json.RawMessage) error {
	ctx, err := c.start(ctx, RoleSender)
	if err != nil {
		return err
	}
	s := newSession(RoleSender)
	s.pin = pin
	s.payload = payload
	return c.run(ctx, s, senderFlow())
}

// Abort cancels the session with KindUserAbort.
func (c *Client) Abort() {
	c.AbortWithKind(KindUserAbort)
}

// AbortWithKind cancels the session with the given kind. The state becomes
// Aborted immediately; clearing the channel, reporting kind and OnAbort follow
// on the session goroutine. Calls after the session ended are ignored.
func (c *Client) AbortWithKind(kind ErrorKind) {
	if kind == "" {
		kind = KindUserAbort
	}

	c.mu.Lock()
	if c.terminal || c.abortKind != "" {
		c.mu.Unlock()
		return
	}
	c.abortKind = kind
	c.state = StateAborted
	if !c.started {
		// Nothing is running to observe the cancel.
		c.started = true
		role := c.role
		c.mu.Unlock()
		_ = c.finish(newSession(role), nil)
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	if c.log != nil {
		c.log.Infof("abort requested: %s", kind)
	}
	cancel()
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Role returns the role of the running session.
func (c *Client) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// ChannelID returns the relay channel in use, or "" before one is known.
func (c *Client) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Done is closed after the session ended and its callback returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the abort error once the session aborted, nil otherwise.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) start(ctx context.Context, role Role) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrInvalidState
	}
	c.started = true
	c.role = role
	ctx, c.cancel = context.WithCancel(ctx)
	return ctx, nil
}

// run executes the flow's steps in order and ends the session.
func (c *Client) run(ctx context.Context, s *session, flow []step) error {
	if c.log != nil {
		c.log.Infof("%s session started", s.role)
	}
	for _, st := range flow {
		if err := ctx.Err(); err != nil {
			return c.finish(s, err)
		}
		c.setState(st.state)
		if err := st.run(ctx, c, s); err != nil {
			// A cancelled or expired session context explains the failure.
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = fmt.Errorf("%w: %v", ctxErr, err)
			}
			if c.log != nil {
				c.log.Debugf("%s step %s failed: %v", s.role, st.name, err)
			}
			return c.finish(s, err)
		}
		if c.log != nil {
			c.log.Tracef("%s step %s done", s.role, st.name)
		}
	}
	return c.finish(s, nil)
}

// setState moves to a running state unless an abort was requested.
func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortKind != "" || c.terminal {
		return
	}
	c.state = state
}

func (c *Client) setChannel(channel string) {
	c.mu.Lock()
	c.channel = channel
	c.mu.Unlock()
}

func (c *Client) abortRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortKind != ""
}

// finish enters the terminal state exactly once, clears the channel, reports
// aborts and runs the matching callback. A pending abort request wins over
// both success and the step error.
func (c *Client) finish(s *session, stepErr error) error {
	defer s.wipe()

	c.mu.Lock()
	if c.terminal {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.terminal = true
	kind := c.abortKind
	if kind == "" && stepErr != nil {
		kind = classify(stepErr, s.seen)
	}
	if kind != "" {
		c.state = StateAborted
		var perr *Error
		if errors.As(stepErr, &perr) && perr.Kind == kind {
			c.err = perr
		} else {
			c.err = &Error{Kind: kind, Err: stepErr}
		}
	} else {
		c.state = StateComplete
	}
	err := c.err
	channel := s.channel
	cancel := c.cancel
	c.mu.Unlock()

	ctx, cleanupCancel := context.WithTimeout(context.Background(), c.config.CleanupTimeout)
	defer cleanupCancel()

	if channel != "" {
		if clearErr := c.config.Relay.Clear(ctx, channel); clearErr != nil && c.log != nil {
			c.log.Warnf("clearing channel %s failed: %v", channel, clearErr)
		}
	}

	if kind != "" {
		c.config.Relay.Report(ctx, channel, string(kind))
		if c.log != nil {
			c.log.Infof("%s session aborted: %v", s.role, err)
		}
		c.config.Controller.OnAbort(kind)
	} else {
		if c.log != nil {
			c.log.Infof("%s session complete", s.role)
		}
		c.config.Controller.OnComplete(s.result)
	}

	if cancel != nil {
		cancel()
	}
	close(c.done)
	return err
}
