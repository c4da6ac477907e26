package commands

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backkem/jpake/pkg/pairing"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	arg := func(s string) *string { return &s }

	tests := []struct {
		name    string
		arg     *string
		file    string
		text    bool
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "argument", arg: arg(`{"a":1}`), want: `{"a":1}`},
		{name: "file", file: path, want: `{"from":"file"}`},
		{name: "stdin", file: "-", stdin: `[1,2]`, want: `[1,2]`},
		{name: "text", arg: arg(`hello "world"`), text: true, want: `"hello \"world\""`},
		{name: "invalid json", arg: arg(`{"a":`), wantErr: true},
		{name: "both sources", arg: arg(`{}`), file: path, wantErr: true},
		{name: "no source", wantErr: true},
		{name: "missing file", file: filepath.Join(dir, "nope"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.arg, tt.file, tt.text, strings.NewReader(tt.stdin))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("readPayload() = %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPayload() failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("readPayload() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReadPayloadInvalidKind(t *testing.T) {
	bad := `not json`
	_, err := readPayload(&bad, "", false, nil)
	if !errors.Is(err, pairing.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	err := describe(&pairing.Error{Kind: pairing.KindKeyMismatch})
	if !strings.Contains(err.Error(), "PIN did not match") || pairing.KindOf(err) != pairing.KindKeyMismatch {
		t.Errorf("describe() = %v", err)
	}
	plain := errors.New("boom")
	if describe(plain) != plain {
		t.Error("describe() changed an unclassified error")
	}
}
