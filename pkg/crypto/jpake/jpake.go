// Package jpake implements J-PAKE, Password Authenticated Key Exchange by
// Juggling (RFC 8236), over the ristretto255 prime-order group with Schnorr
// non-interactive zero-knowledge proofs (RFC 8235).
//
// Both parties share a low-entropy secret s (the PIN secret) and hold distinct
// signer identities. The exchange has two rounds followed by key confirmation:
//
//	Alice                                   Bob
//	-----                                   ---
//	r1 = Round1()        ---G1,G2,ZKPs-->   r2 = ProcessRound1(r1)
//	                     <--G3,G4,ZKPs---   (Bob's own Round1 precedes this)
//	A = ProcessRound1(.) ----A,ZKP------>   keys = ProcessRound2(A)
//	keys = ProcessRound2 <---B,ZKP-------
//	VerifyConfirmationTag(...)              ConfirmationTag(...)
//
// Round-2 proofs only show knowledge of the exponent; they verify even when the
// two secrets differ. A PIN mismatch surfaces as a key confirmation failure.
package jpake

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"github.com/backkem/jpake/pkg/crypto"
	"github.com/gtank/ristretto255"
)

// Encoding sizes.
const (
	// ElementSize is the canonical ristretto255 element encoding size.
	ElementSize = 32

	// ScalarSize is the canonical ristretto255 scalar encoding size.
	ScalarSize = 32

	// KeySize is the size of each derived session key.
	KeySize = crypto.SymmetricKeySize
)

// Domain separation labels.
const (
	secretLabel    = "jpake-ristretto255-secret"
	challengeLabel = "jpake-ristretto255-zkp"
	keyInfo        = "jpake-ristretto255 session keys v1"
)

// Errors.
var (
	ErrInvalidState       = errors.New("jpake: invalid protocol state for this operation")
	ErrEmptySecret        = errors.New("jpake: secret must not be empty")
	ErrSameSignerID       = errors.New("jpake: signer and peer ids must differ")
	ErrInvalidEncoding    = errors.New("jpake: invalid element or scalar encoding")
	ErrDegenerateElement  = errors.New("jpake: degenerate group element")
	ErrInvalidSignerID    = errors.New("jpake: unexpected signer id in proof")
	ErrProofFailed        = errors.New("jpake: zero-knowledge proof verification failed")
	ErrConfirmationFailed = errors.New("jpake: key confirmation failed")
)

// generator is the ristretto255 base point.
var generator = ristretto255.NewIdentityElement().ScalarBaseMult(scalarOne())

type state int

const (
	stateInit state = iota
	stateRound1Sent
	stateRound2Sent
	stateComplete
	stateFailed
)

// Proof is a Schnorr proof of knowledge of x for X = [x]Gen.
type Proof struct {
	// Commitment is V = [v]Gen.
	Commitment []byte
	// Response is r = v - c*x.
	Response []byte
	// SignerID identifies the prover and is bound into the challenge.
	SignerID string
}

// Round1 carries G1 = [x1]B and G2 = [x2]B with their proofs.
type Round1 struct {
	GX1     []byte
	GX2     []byte
	ProofX1 Proof
	ProofX2 Proof
}

// Round2 carries A = [x2*s](G1+G3+G4) with its proof over that base.
type Round2 struct {
	A      []byte
	ProofA Proof
}

// Participant holds one side of a J-PAKE exchange.
// A Participant is single-use and not safe for concurrent use.
type Participant struct {
	signerID string
	peerID   string

	s  *ristretto255.Scalar
	x1 *ristretto255.Scalar
	x2 *ristretto255.Scalar

	g1, g2 *ristretto255.Element // ours
	g3, g4 *ristretto255.Element // peer's

	state state
	rand  io.Reader
}

// NewParticipant creates a participant identified by signerID that expects its
// peer to sign with peerID. If random is nil, crypto/rand is used.
func NewParticipant(signerID, peerID string, secret []byte, random io.Reader) (*Participant, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if signerID == peerID {
		return nil, ErrSameSignerID
	}
	if random == nil {
		random = rand.Reader
	}

	digest := crypto.SHA512([]byte(secretLabel), secret)
	defer crypto.Wipe(digest)
	s, err := ristretto255.NewScalar().SetUniformBytes(digest)
	if err != nil {
		return nil, err
	}
	if isZero(s) {
		return nil, ErrEmptySecret
	}

	return &Participant{
		signerID: signerID,
		peerID:   peerID,
		s:        s,
		state:    stateInit,
		rand:     random,
	}, nil
}

// SignerID returns the local signer identity.
func (p *Participant) SignerID() string { return p.signerID }

// Round1 generates this party's first-round message.
func (p *Participant) Round1() (*Round1, error) {
	if p.state != stateInit {
		return nil, ErrInvalidState
	}

	var err error
	if p.x1, err = randomScalar(p.rand); err != nil {
		return nil, err
	}
	if p.x2, err = randomScalar(p.rand); err != nil {
		return nil, err
	}
	p.g1 = ristretto255.NewIdentityElement().ScalarBaseMult(p.x1)
	p.g2 = ristretto255.NewIdentityElement().ScalarBaseMult(p.x2)

	proof1, err := prove(p.rand, generator, p.x1, p.g1, p.signerID)
	if err != nil {
		return nil, err
	}
	proof2, err := prove(p.rand, generator, p.x2, p.g2, p.signerID)
	if err != nil {
		return nil, err
	}

	p.state = stateRound1Sent
	return &Round1{
		GX1:     p.g1.Bytes(),
		GX2:     p.g2.Bytes(),
		ProofX1: proof1,
		ProofX2: proof2,
	}, nil
}

// ProcessRound1 verifies the peer's first-round message and returns this
// party's second-round message.
func (p *Participant) ProcessRound1(peer *Round1) (*Round2, error) {
	if p.state != stateRound1Sent {
		return nil, ErrInvalidState
	}
	if peer == nil {
		return nil, p.fail(ErrInvalidEncoding)
	}

	g3, err := decodePublicElement(peer.GX1)
	if err != nil {
		return nil, p.fail(err)
	}
	g4, err := decodePublicElement(peer.GX2)
	if err != nil {
		return nil, p.fail(err)
	}
	if err := verify(generator, g3, peer.ProofX1, p.peerID); err != nil {
		return nil, p.fail(err)
	}
	if err := verify(generator, g4, peer.ProofX2, p.peerID); err != nil {
		return nil, p.fail(err)
	}
	p.g3, p.g4 = g3, g4

	// A = [x2*s](G1+G3+G4)
	base := ristretto255.NewIdentityElement().Add(p.g1, p.g3)
	base.Add(base, p.g4)
	if isIdentity(base) {
		return nil, p.fail(ErrDegenerateElement)
	}

	x2s := ristretto255.NewScalar().Multiply(p.x2, p.s)
	defer x2s.Zero()
	a := ristretto255.NewIdentityElement().ScalarMult(x2s, base)

	proof, err := prove(p.rand, base, x2s, a, p.signerID)
	if err != nil {
		return nil, p.fail(err)
	}

	p.state = stateRound2Sent
	return &Round2{A: a.Bytes(), ProofA: proof}, nil
}

// ProcessRound2 verifies the peer's second-round message and derives the
// session keys. Secret scalars are wiped before returning.
func (p *Participant) ProcessRound2(peer *Round2) (*SessionKeys, error) {
	if p.state != stateRound2Sent {
		return nil, ErrInvalidState
	}
	if peer == nil {
		return nil, p.fail(ErrInvalidEncoding)
	}

	b, err := decodePublicElement(peer.A)
	if err != nil {
		return nil, p.fail(err)
	}

	// The peer's base is G3+G1+G2 from our point of view.
	base := ristretto255.NewIdentityElement().Add(p.g1, p.g2)
	base.Add(base, p.g3)
	if err := verify(base, b, peer.ProofA, p.peerID); err != nil {
		return nil, p.fail(err)
	}

	// K = [x2](B - [x2*s]G4)
	x2s := ristretto255.NewScalar().Multiply(p.x2, p.s)
	defer x2s.Zero()
	t := ristretto255.NewIdentityElement().ScalarMult(x2s, p.g4)
	t = ristretto255.NewIdentityElement().Subtract(b, t)
	k := ristretto255.NewIdentityElement().ScalarMult(p.x2, t)

	keys, err := deriveSessionKeys(k.Bytes())
	if err != nil {
		return nil, p.fail(err)
	}

	p.Wipe()
	p.state = stateComplete
	return keys, nil
}

// Wipe zeroes the secret scalars. The participant is unusable afterwards.
func (p *Participant) Wipe() {
	for _, sc := range []*ristretto255.Scalar{p.s, p.x1, p.x2} {
		if sc != nil {
			sc.Zero()
		}
	}
	if p.state != stateComplete {
		p.state = stateFailed
	}
}

func (p *Participant) fail(err error) error {
	p.Wipe()
	return err
}

// prove creates a Schnorr proof of knowledge of x for X = [x]gen.
func prove(random io.Reader, gen *ristretto255.Element, x *ristretto255.Scalar, X *ristretto255.Element, signerID string) (Proof, error) {
	v, err := randomScalar(random)
	if err != nil {
		return Proof{}, err
	}
	defer v.Zero()

	commitment := ristretto255.NewIdentityElement().ScalarMult(v, gen)
	c := challenge(gen, commitment, X, signerID)

	// r = v - c*x
	cx := ristretto255.NewScalar().Multiply(c, x)
	r := ristretto255.NewScalar().Subtract(v, cx)
	cx.Zero()

	return Proof{
		Commitment: commitment.Bytes(),
		Response:   r.Bytes(),
		SignerID:   signerID,
	}, nil
}

// verify checks V == [r]gen + [c]X for the challenge c bound to signerID.
func verify(gen, X *ristretto255.Element, proof Proof, expectedSignerID string) error {
	if proof.SignerID != expectedSignerID {
		return ErrInvalidSignerID
	}
	commitment, err := decodeElement(proof.Commitment)
	if err != nil {
		return err
	}
	r, err := decodeScalar(proof.Response)
	if err != nil {
		return err
	}

	c := challenge(gen, commitment, X, proof.SignerID)
	expected := ristretto255.NewIdentityElement().ScalarMult(r, gen)
	expected.Add(expected, ristretto255.NewIdentityElement().ScalarMult(c, X))

	if expected.Equal(commitment) != 1 {
		return ErrProofFailed
	}
	return nil
}

// challenge hashes the length-prefixed proof transcript onto a scalar.
func challenge(gen, commitment, X *ristretto255.Element, signerID string) *ristretto255.Scalar {
	digest := crypto.SHA512(
		lengthPrefixed([]byte(challengeLabel)),
		lengthPrefixed(gen.Bytes()),
		lengthPrefixed(commitment.Bytes()),
		lengthPrefixed(X.Bytes()),
		lengthPrefixed([]byte(signerID)),
	)
	c, _ := ristretto255.NewScalar().SetUniformBytes(digest)
	return c
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 4, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	return append(out, b...)
}

// randomScalar draws a uniformly random non-zero scalar.
func randomScalar(random io.Reader) (*ristretto255.Scalar, error) {
	var buf [64]byte
	defer crypto.Wipe(buf[:])
	for {
		if _, err := io.ReadFull(random, buf[:]); err != nil {
			return nil, err
		}
		s, err := ristretto255.NewScalar().SetUniformBytes(buf[:])
		if err != nil {
			return nil, err
		}
		if !isZero(s) {
			return s, nil
		}
	}
}

func decodeElement(b []byte) (*ristretto255.Element, error) {
	if len(b) != ElementSize {
		return nil, ErrInvalidEncoding
	}
	e, err := ristretto255.NewIdentityElement().SetCanonicalBytes(b)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return e, nil
}

// decodePublicElement decodes an exchanged public value, rejecting the identity.
func decodePublicElement(b []byte) (*ristretto255.Element, error) {
	e, err := decodeElement(b)
	if err != nil {
		return nil, err
	}
	if isIdentity(e) {
		return nil, ErrDegenerateElement
	}
	return e, nil
}

func decodeScalar(b []byte) (*ristretto255.Scalar, error) {
	if len(b) != ScalarSize {
		return nil, ErrInvalidEncoding
	}
	s, err := ristretto255.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return s, nil
}

func isIdentity(e *ristretto255.Element) bool {
	return e.Equal(ristretto255.NewIdentityElement()) == 1
}

func isZero(s *ristretto255.Scalar) bool {
	return s.Equal(ristretto255.NewScalar()) == 1
}

func scalarOne() *ristretto255.Scalar {
	var b [ScalarSize]byte
	b[0] = 1
	s, err := ristretto255.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		panic(err)
	}
	return s
}
