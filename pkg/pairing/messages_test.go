package pairing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/backkem/jpake/pkg/crypto/jpake"
)

func TestMessageType(t *testing.T) {
	if got := messageType(RoleReceiver, 1); got != "receiver1" {
		t.Errorf("messageType(receiver, 1) = %q", got)
	}
	if got := messageType(RoleSender, 3); got != "sender3" {
		t.Errorf("messageType(sender, 3) = %q", got)
	}
}

func TestRound1Wire(t *testing.T) {
	p, err := jpake.NewParticipant(signerSender, signerReceiver, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("NewParticipant failed: %v", err)
	}
	r1, err := p.Round1()
	if err != nil {
		t.Fatalf("Round1 failed: %v", err)
	}

	doc, err := encodeMessage("sender1", encodeRound1(r1))
	if err != nil {
		t.Fatalf("encodeMessage failed: %v", err)
	}

	// The field names are the wire contract.
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["type"] != "sender1" || raw["version"] != float64(MessageVersion) {
		t.Errorf("envelope header = %v", raw)
	}
	payload := raw["payload"].(map[string]any)
	for _, key := range []string{"gx1", "gx2", "zkp_x1", "zkp_x2"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
	zkp := payload["zkp_x1"].(map[string]any)
	if zkp["id"] != signerSender {
		t.Errorf("zkp id = %v", zkp["id"])
	}

	env, err := decodeEnvelope(doc)
	if err != nil {
		t.Fatalf("decodeEnvelope failed: %v", err)
	}
	var p1 round1Payload
	if err := env.open("sender1", &p1); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	decoded, err := p1.decode()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	// A fresh peer accepts the decoded message.
	peer, err := jpake.NewParticipant(signerReceiver, signerSender, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("NewParticipant failed: %v", err)
	}
	if _, err := peer.Round1(); err != nil {
		t.Fatalf("Round1 failed: %v", err)
	}
	if _, err := peer.ProcessRound1(decoded); err != nil {
		t.Errorf("ProcessRound1 of decoded message failed: %v", err)
	}
}

func TestEnvelopeOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"wrong type", `{"type":"receiver2","version":3,"payload":{}}`, errWrongMessage},
		{"wrong version", `{"type":"receiver1","version":2,"payload":{}}`, errBadVersion},
		{"no payload", `{"type":"receiver1","version":3}`, errMalformed},
		{"payload not an object", `{"type":"receiver1","version":3,"payload":"x"}`, errMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := decodeEnvelope([]byte(tc.doc))
			if err != nil {
				t.Fatalf("decodeEnvelope failed: %v", err)
			}
			var p round1Payload
			if err := env.open("receiver1", &p); !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	if _, err := decodeEnvelope([]byte(`{"type":`)); !errors.Is(err, errMalformed) {
		t.Errorf("expected errMalformed for truncated JSON, got %v", err)
	}
	env, err := decodeEnvelope([]byte(`{}`))
	if err != nil || env.Type != "" {
		t.Errorf("empty document: env=%+v err=%v", env, err)
	}
}

func TestRound1PayloadDecodeErrors(t *testing.T) {
	good := wireProof{GR: "00", B: "00", ID: signerSender}
	tests := []struct {
		name string
		p    round1Payload
	}{
		{"missing gx1", round1Payload{GX2: "00", ZKPX1: good, ZKPX2: good}},
		{"bad hex", round1Payload{GX1: "zz", GX2: "00", ZKPX1: good, ZKPX2: good}},
		{"missing proof commitment", round1Payload{GX1: "00", GX2: "00", ZKPX1: wireProof{B: "00"}, ZKPX2: good}},
	}
	for _, tc := range tests {
		if _, err := tc.p.decode(); !errors.Is(err, errMalformed) {
			t.Errorf("%s: expected errMalformed, got %v", tc.name, err)
		}
	}
}
