package discovery

import (
	"strconv"
	"strings"
)

// TXT record keys of a relay advertisement.
const (
	// TXTKeyVersion is the round message version the relay serves.
	TXTKeyVersion = "v"

	// TXTKeyScheme is "http" or "https".
	TXTKeyScheme = "scheme"

	// TXTKeyPath is the relay root path on the advertised host.
	TXTKeyPath = "path"
)

// RelayTXT describes a relay beyond its address.
type RelayTXT struct {
	// Version is the pairing message version. Zero omits the key.
	Version int

	// Scheme defaults to "http".
	Scheme string

	// Path defaults to "/".
	Path string
}

// Encode converts the TXT fields to "key=value" records.
func (t RelayTXT) Encode() []string {
	records := []string{
		TXTKeyScheme + "=" + t.scheme(),
		TXTKeyPath + "=" + t.path(),
	}
	if t.Version != 0 {
		records = append(records, TXTKeyVersion+"="+strconv.Itoa(t.Version))
	}
	return records
}

// Validate checks the fields that Encode would publish.
func (t RelayTXT) Validate() error {
	switch t.scheme() {
	case "http", "https":
	default:
		return ErrInvalidTXTRecord
	}
	if !strings.HasPrefix(t.path(), "/") || t.Version < 0 {
		return ErrInvalidTXTRecord
	}
	return nil
}

func (t RelayTXT) scheme() string {
	if t.Scheme == "" {
		return "http"
	}
	return t.Scheme
}

func (t RelayTXT) path() string {
	if t.Path == "" {
		return "/"
	}
	return t.Path
}

// ParseTXT parses "key=value" records into a map. Records without '=' are
// ignored; for repeated keys the last one wins.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseRelayTXT parses raw TXT records into a RelayTXT. Missing keys take
// their defaults.
func ParseRelayTXT(records []string) (RelayTXT, error) {
	m := ParseTXT(records)
	var txt RelayTXT

	txt.Scheme = strings.ToLower(m[TXTKeyScheme])
	txt.Path = m[TXTKeyPath]
	if v, ok := m[TXTKeyVersion]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return RelayTXT{}, ErrInvalidTXTRecord
		}
		txt.Version = n
	}

	if err := txt.Validate(); err != nil {
		return RelayTXT{}, err
	}
	txt.Scheme = txt.scheme()
	txt.Path = txt.path()
	return txt, nil
}
