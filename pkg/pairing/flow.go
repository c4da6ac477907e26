package pairing

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backkem/jpake/pkg/crypto"
	"github.com/backkem/jpake/pkg/crypto/jpake"
	"github.com/backkem/jpake/pkg/poll"
	"github.com/backkem/jpake/pkg/relay"
)

// Both roles exchange the same three rounds. They differ in who writes first
// and in what round 3 carries:
//
//	Receiver                         Relay                          Sender
//	allocate, PUT receiver1   ->  [receiver1]
//	DisplayPIN(secret+channel)                                       <- user types PIN
//	                              [receiver1]  ->  GET, PUT sender1
//	GET sender1, PUT receiver2 <- [sender1]
//	                              [receiver2]  ->  GET, PUT sender2
//	GET sender2, PUT receiver3 <- [sender2]        (receiver3 = key confirmation)
//	                              [receiver3]  ->  GET, verify, PUT sender3
//	GET sender3, decrypt, clear <- [sender3]       (sender3 = sealed payload)
//	                              (cleared)    ->  GET 404 = acknowledged, clear

// step is one entry of a role's flow table.
type step struct {
	name  string
	state State
	run   func(ctx context.Context, c *Client, s *session) error
}

func receiverFlow() []step {
	return []step{
		{name: "allocate", state: StateIdle, run: allocateChannel},
		{name: "start", state: StateIdle, run: startExchange},
		{name: "put round 1", state: StateIdle, run: putRound(1)},
		{name: "display pin", state: StateIdle, run: displayPIN},
		{name: "get round 1", state: StateAwaitingPeerRound1, run: getRound(1, true)},
		{name: "put round 2", state: StateAwaitingPeerRound2, run: putRound(2)},
		{name: "get round 2", state: StateAwaitingPeerRound2, run: getRound(2, false)},
		{name: "put round 3", state: StateAwaitingPeerRound3, run: putRound(3)},
		{name: "get round 3", state: StateAwaitingPeerRound3, run: getRound(3, false)},
	}
}

func senderFlow() []step {
	return []step{
		{name: "parse pin", state: StateIdle, run: parsePIN},
		{name: "start", state: StateIdle, run: startExchange},
		{name: "get round 1", state: StateAwaitingPeerRound1, run: getRound(1, false)},
		{name: "put round 1", state: StateAwaitingPeerRound2, run: putRound(1)},
		{name: "get round 2", state: StateAwaitingPeerRound2, run: getRound(2, false)},
		{name: "put round 2", state: StateAwaitingPeerRound3, run: putRound(2)},
		{name: "get round 3", state: StateAwaitingPeerRound3, run: getRound(3, false)},
		{name: "put round 3", state: StateAwaitingAck, run: putRound(3)},
		{name: "await ack", state: StateAwaitingAck, run: awaitAck},
	}
}

// session is the per-run protocol data. It is owned by the session goroutine.
type session struct {
	role    Role
	pin     string
	secret  []byte
	channel string
	etag    string
	lastPut string

	// seen is set once the channel is known to exist.
	seen bool

	participant *jpake.Participant
	round1      *jpake.Round1
	round2      *jpake.Round2
	keys        *jpake.SessionKeys

	payload json.RawMessage // sender: what to deliver
	result  json.RawMessage // payload passed to OnComplete
}

func newSession(role Role) *session {
	return &session{role: role}
}

func (s *session) wipe() {
	crypto.Wipe(s.secret)
	if s.participant != nil {
		s.participant.Wipe()
	}
	if s.keys != nil {
		s.keys.Wipe()
	}
}

func (s *session) aad() []byte {
	return []byte(payloadAAD + " " + s.channel)
}

func allocateChannel(ctx context.Context, c *Client, s *session) error {
	channel, err := c.config.Relay.Allocate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Any allocation failure is a channel problem, reachable relay or not.
		return &Error{Kind: KindChannel, Err: err}
	}
	s.channel = channel
	s.seen = true
	c.setChannel(channel)
	return nil
}

func parsePIN(_ context.Context, c *Client, s *session) error {
	secret, channel, err := SplitPIN(s.pin)
	if err != nil {
		return err
	}
	if !json.Valid(s.payload) {
		return ErrInvalidPayload
	}
	s.secret = []byte(secret)
	s.channel = channel
	c.setChannel(channel)
	return nil
}

// startExchange creates the J-PAKE participant and this side's round 1. The
// receiver draws the secret here.
func startExchange(_ context.Context, c *Client, s *session) error {
	if s.secret == nil {
		secret, err := NewSecret(c.config.Rand)
		if err != nil {
			return err
		}
		s.secret = []byte(secret)
	}

	p, err := jpake.NewParticipant(s.role.signerID(), s.role.peer().signerID(), s.secret, c.config.Rand)
	if err != nil {
		return err
	}
	r1, err := p.Round1()
	if err != nil {
		return err
	}
	s.participant = p
	s.round1 = r1
	return nil
}

func displayPIN(ctx context.Context, c *Client, s *session) error {
	if c.abortRequested() {
		return ctx.Err()
	}
	c.config.Controller.DisplayPIN(JoinPIN(string(s.secret), s.channel))
	return nil
}

// putRound writes this side's message for the round.
func putRound(round int) func(context.Context, *Client, *session) error {
	return func(ctx context.Context, c *Client, s *session) error {
		payload, err := s.outbound(round)
		if err != nil {
			return err
		}
		msgType := messageType(s.role, round)
		doc, err := encodeMessage(msgType, payload)
		if err != nil {
			return err
		}
		etag, err := c.config.Relay.Put(ctx, s.channel, doc)
		if err != nil {
			return err
		}
		s.etag = etag
		s.lastPut = msgType
		return nil
	}
}

// getRound waits for the peer's message for the round and processes it.
func getRound(round int, firstMessage bool) func(context.Context, *Client, *session) error {
	return func(ctx context.Context, c *Client, s *session) error {
		tries := c.config.MaxTries
		if firstMessage {
			tries = c.config.FirstMsgMaxTries
		}
		env, err := c.fetch(ctx, s, tries)
		if err != nil {
			return err
		}
		return s.inbound(round, env)
	}
}

// awaitAck waits until the receiver or the relay clears the channel.
func awaitAck(ctx context.Context, c *Client, s *session) error {
	err := c.poller.Poll(ctx, c.config.MaxTries, func(ctx context.Context) error {
		doc, etag, err := c.config.Relay.Get(ctx, s.channel, s.etag)
		switch {
		case errors.Is(err, relay.ErrNotFound):
			return nil
		case errors.Is(err, relay.ErrNotModified):
			return poll.ErrNotReady
		case err != nil:
			return err
		}
		s.etag = etag
		env, err := decodeEnvelope(doc)
		if err != nil {
			return err
		}
		if env.Type == "" || env.Type == s.lastPut {
			return poll.ErrNotReady
		}
		return fmt.Errorf("%w: %q after %s", errWrongMessage, env.Type, s.lastPut)
	})
	if err != nil {
		return err
	}
	s.result = s.payload
	return nil
}

// fetch polls the channel until it holds a message other than ours. An empty
// document, a 304 and our own last message all count as "not yet".
func (c *Client) fetch(ctx context.Context, s *session, tries int) (*envelope, error) {
	var env *envelope
	err := c.poller.Poll(ctx, tries, func(ctx context.Context) error {
		doc, etag, err := c.config.Relay.Get(ctx, s.channel, s.etag)
		switch {
		case errors.Is(err, relay.ErrNotModified):
			return poll.ErrNotReady
		case err != nil:
			return err
		}
		s.seen = true
		s.etag = etag

		e, err := decodeEnvelope(doc)
		if err != nil {
			return err
		}
		if e.Type == "" || e.Type == s.lastPut {
			return poll.ErrNotReady
		}
		env = e
		return nil
	})
	return env, err
}

// outbound builds this side's payload for the round.
func (s *session) outbound(round int) (any, error) {
	switch round {
	case 1:
		return encodeRound1(s.round1), nil
	case 2:
		if s.round2 == nil {
			return nil, errors.New("pairing: round 2 not computed")
		}
		return encodeRound2(s.round2), nil
	case 3:
		if s.keys == nil {
			return nil, errors.New("pairing: session keys not derived")
		}
		if s.role == RoleReceiver {
			return confirmPayload{HMAC: hex.EncodeToString(s.keys.ConfirmationTag(confirmLabel))}, nil
		}
		sealed, err := s.keys.Seal(nil, s.payload, s.aad())
		if err != nil {
			return nil, err
		}
		return cipherPayload{Ciphertext: hex.EncodeToString(sealed)}, nil
	default:
		return nil, fmt.Errorf("pairing: no round %d", round)
	}
}

// inbound processes the peer's message for the round.
func (s *session) inbound(round int, env *envelope) error {
	want := messageType(s.role.peer(), round)
	switch round {
	case 1:
		var p round1Payload
		if err := env.open(want, &p); err != nil {
			return err
		}
		r1, err := p.decode()
		if err != nil {
			return err
		}
		s.round2, err = s.participant.ProcessRound1(r1)
		return err

	case 2:
		var p round2Payload
		if err := env.open(want, &p); err != nil {
			return err
		}
		r2, err := p.decode()
		if err != nil {
			return err
		}
		s.keys, err = s.participant.ProcessRound2(r2)
		return err

	case 3:
		if s.role == RoleSender {
			var p confirmPayload
			if err := env.open(want, &p); err != nil {
				return err
			}
			tag, err := decodeHex("hmac", p.HMAC)
			if err != nil {
				return err
			}
			return s.keys.VerifyConfirmationTag(confirmLabel, tag)
		}

		var p cipherPayload
		if err := env.open(want, &p); err != nil {
			return err
		}
		sealed, err := decodeHex("ciphertext", p.Ciphertext)
		if err != nil {
			return err
		}
		plaintext, err := s.keys.Open(sealed, s.aad())
		if err != nil {
			return err
		}
		if !json.Valid(plaintext) {
			return fmt.Errorf("%w: decrypted payload", ErrInvalidPayload)
		}
		s.result = plaintext
		return nil

	default:
		return fmt.Errorf("pairing: no round %d", round)
	}
}
