package discovery

import (
	"reflect"
	"testing"
)

func TestRelayTXT_Encode(t *testing.T) {
	tests := []struct {
		name string
		txt  RelayTXT
		want []string
	}{
		{
			name: "defaults",
			txt:  RelayTXT{},
			want: []string{"scheme=http", "path=/"},
		},
		{
			name: "full",
			txt:  RelayTXT{Version: 3, Scheme: "https", Path: "/pair/"},
			want: []string{"scheme=https", "path=/pair/", "v=3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.txt.Encode(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRelayTXT(t *testing.T) {
	tests := []struct {
		name    string
		records []string
		want    RelayTXT
		wantErr error
	}{
		{
			name:    "empty takes defaults",
			records: nil,
			want:    RelayTXT{Scheme: "http", Path: "/"},
		},
		{
			name:    "full",
			records: []string{"v=3", "scheme=HTTPS", "path=/pair/", "junk"},
			want:    RelayTXT{Version: 3, Scheme: "https", Path: "/pair/"},
		},
		{
			name:    "bad version",
			records: []string{"v=three"},
			wantErr: ErrInvalidTXTRecord,
		},
		{
			name:    "bad scheme",
			records: []string{"scheme=ftp"},
			wantErr: ErrInvalidTXTRecord,
		},
		{
			name:    "relative path",
			records: []string{"path=pair"},
			wantErr: ErrInvalidTXTRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelayTXT(tt.records)
			if err != tt.wantErr {
				t.Fatalf("ParseRelayTXT() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseRelayTXT() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := ParseTXT([]string{"a=1", "b=", "=x", "noequals", "a=2"})
	want := map[string]string{"a": "2", "b": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTXT() = %v, want %v", got, want)
	}
}
