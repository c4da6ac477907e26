package pairing

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/backkem/jpake/pkg/crypto/jpake"
)

// MessageVersion is the round message format version.
const MessageVersion = 3

// Signer ids bound into the zero-knowledge proofs.
const (
	signerReceiver = "receiver"
	signerSender   = "sender"
)

// Domain separation labels for key confirmation and the payload AEAD.
const (
	confirmLabel = "jpake-pairing receiver confirmation"
	payloadAAD   = "jpake-pairing payload"
)

// Round message types are the role name followed by the round number.
func messageType(role Role, round int) string {
	return role.signerID() + strconv.Itoa(round)
}

// envelope is the document stored in a channel.
type envelope struct {
	Type    string          `json:"type,omitempty"`
	Version int             `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireProof struct {
	GR string `json:"gr"`
	B  string `json:"b"`
	ID string `json:"id"`
}

type round1Payload struct {
	GX1   string    `json:"gx1"`
	GX2   string    `json:"gx2"`
	ZKPX1 wireProof `json:"zkp_x1"`
	ZKPX2 wireProof `json:"zkp_x2"`
}

type round2Payload struct {
	A    string    `json:"A"`
	ZKPA wireProof `json:"zkp_A"`
}

type confirmPayload struct {
	HMAC string `json:"hmac"`
}

type cipherPayload struct {
	Ciphertext string `json:"ciphertext"`
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: msgType, Version: MessageVersion, Payload: raw})
}

// decodeEnvelope parses a channel document. An empty document yields an
// envelope with an empty Type.
func decodeEnvelope(doc []byte) (*envelope, error) {
	var env envelope
	if len(bytes.TrimSpace(doc)) == 0 {
		return &env, nil
	}
	if err := json.Unmarshal(doc, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &env, nil
}

// open checks the envelope header and unmarshals its payload into out.
func (env *envelope) open(expectedType string, out any) error {
	if env.Type != expectedType {
		return fmt.Errorf("%w: got %q, want %q", errWrongMessage, env.Type, expectedType)
	}
	if env.Version != MessageVersion {
		return fmt.Errorf("%w: %d", errBadVersion, env.Version)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", errMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", errMalformed, env.Type, err)
	}
	return nil
}

func encodeProof(p jpake.Proof) wireProof {
	return wireProof{
		GR: hex.EncodeToString(p.Commitment),
		B:  hex.EncodeToString(p.Response),
		ID: p.SignerID,
	}
}

func (w wireProof) decode() (jpake.Proof, error) {
	gr, err := decodeHex("gr", w.GR)
	if err != nil {
		return jpake.Proof{}, err
	}
	b, err := decodeHex("b", w.B)
	if err != nil {
		return jpake.Proof{}, err
	}
	return jpake.Proof{Commitment: gr, Response: b, SignerID: w.ID}, nil
}

func encodeRound1(r *jpake.Round1) round1Payload {
	return round1Payload{
		GX1:   hex.EncodeToString(r.GX1),
		GX2:   hex.EncodeToString(r.GX2),
		ZKPX1: encodeProof(r.ProofX1),
		ZKPX2: encodeProof(r.ProofX2),
	}
}

func (p round1Payload) decode() (*jpake.Round1, error) {
	gx1, err := decodeHex("gx1", p.GX1)
	if err != nil {
		return nil, err
	}
	gx2, err := decodeHex("gx2", p.GX2)
	if err != nil {
		return nil, err
	}
	zkp1, err := p.ZKPX1.decode()
	if err != nil {
		return nil, err
	}
	zkp2, err := p.ZKPX2.decode()
	if err != nil {
		return nil, err
	}
	return &jpake.Round1{GX1: gx1, GX2: gx2, ProofX1: zkp1, ProofX2: zkp2}, nil
}

func encodeRound2(r *jpake.Round2) round2Payload {
	return round2Payload{A: hex.EncodeToString(r.A), ZKPA: encodeProof(r.ProofA)}
}

func (p round2Payload) decode() (*jpake.Round2, error) {
	a, err := decodeHex("A", p.A)
	if err != nil {
		return nil, err
	}
	zkp, err := p.ZKPA.decode()
	if err != nil {
		return nil, err
	}
	return &jpake.Round2{A: a, ProofA: zkp}, nil
}

func decodeHex(field, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing %s", errMalformed, field)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errMalformed, field, err)
	}
	return b, nil
}
