package relay

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Server defaults.
const (
	DefaultMaxGets         = 6
	DefaultChannelTTL      = 5 * time.Minute
	DefaultMaxDocumentSize = 64 << 10
)

// maxReportLabel bounds report values used as metric labels.
const maxReportLabel = 64

// ServerConfig configures a Server.
type ServerConfig struct {
	// MaxGets is the number of successful reads, counted from the first
	// write, after which the channel is cleared. Zero means DefaultMaxGets.
	MaxGets int

	// ChannelTTL is how long an untouched channel is kept. Zero means
	// DefaultChannelTTL.
	ChannelTTL time.Duration

	// MaxDocumentSize caps PUT bodies. Zero means DefaultMaxDocumentSize.
	MaxDocumentSize int64

	// ClientIDLength is the required X-KeyExchange-Id length. Zero means
	// LengthClientID.
	ClientIDLength int

	// Rand is the source for channel ids. If nil, crypto/rand is used.
	Rand io.Reader

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Report is an outcome report received on /report.
type Report struct {
	ClientID string
	Channel  string
	Log      string
	Time     time.Time
}

type channel struct {
	doc      []byte
	etag     string
	rev      uint64
	written  bool
	gets     int
	lastUsed time.Time
}

// Server is an in-memory relay. It implements http.Handler.
type Server struct {
	config  ServerConfig
	mux     *http.ServeMux
	metrics *serverMetrics
	log     logging.LeveledLogger

	mu       sync.Mutex
	channels map[string]*channel
	reports  []Report
}

// NewServer creates a relay server.
func NewServer(config ServerConfig) *Server {
	if config.MaxGets == 0 {
		config.MaxGets = DefaultMaxGets
	}
	if config.ChannelTTL == 0 {
		config.ChannelTTL = DefaultChannelTTL
	}
	if config.MaxDocumentSize == 0 {
		config.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if config.ClientIDLength == 0 {
		config.ClientIDLength = LengthClientID
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &Server{
		config:   config,
		mux:      http.NewServeMux(),
		metrics:  newServerMetrics(),
		channels: make(map[string]*channel),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("relay-server")
	}

	s.mux.HandleFunc("POST "+PathNewChannel, s.handleNewChannel)
	s.mux.HandleFunc("POST "+PathReport, s.handleReport)
	s.mux.HandleFunc("GET /{channel}", s.handleGet)
	s.mux.HandleFunc("PUT /{channel}", s.handlePut)
	s.mux.HandleFunc("DELETE /{channel}", s.handleDelete)
	return s
}

// ServeHTTP checks the common headers and dispatches the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		s.metrics.requests.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
	}()

	if r.Header.Get("Authorization") != "" {
		http.Error(rec, "authorization not accepted", http.StatusBadRequest)
		return
	}
	if len(r.Header.Get(HeaderClientID)) != s.config.ClientIDLength {
		http.Error(rec, "missing or malformed "+HeaderClientID, http.StatusBadRequest)
		return
	}
	s.mux.ServeHTTP(rec, r)
}

// MetricsHandler serves the server's prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.handler()
}

func (s *Server) handleNewChannel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.purgeLocked()
	id, err := s.newChannelIDLocked()
	if err != nil {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Errorf("channel id generation failed: %v", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.channels[id] = s.newChannelLocked()
	s.mu.Unlock()

	s.metrics.allocated.Inc()
	s.metrics.open.Inc()
	if s.log != nil {
		s.log.Debugf("allocated channel %s", id)
	}

	body, _ := json.Marshal(id)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("channel")

	s.mu.Lock()
	ch := s.lookupLocked(id)
	if ch == nil {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	ch.lastUsed = s.config.Now()
	doc, etag := ch.doc, ch.etag
	if match := r.Header.Get(HeaderIfNoneMatch); match != "" && match == etag {
		s.mu.Unlock()
		w.Header().Set(HeaderETag, etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if ch.written {
		ch.gets++
		if ch.gets >= s.config.MaxGets {
			s.removeLocked(id, clearReasonMaxGets)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderETag, etag)
	_, _ = w.Write(doc)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("channel")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxDocumentSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body failed", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "document is not valid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	ch := s.lookupLocked(id)
	if ch == nil {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	ch.store(body, s.config.Now())
	ch.written = true
	etag := ch.etag
	s.mu.Unlock()

	if s.log != nil {
		s.log.Tracef("channel %s: stored %d bytes, etag %s", id, len(body), etag)
	}
	w.Header().Set(HeaderETag, etag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("channel")

	s.mu.Lock()
	found := s.lookupLocked(id) != nil
	if found {
		s.removeLocked(id, clearReasonDelete)
	}
	s.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := Report{
		ClientID: r.Header.Get(HeaderClientID),
		Channel:  r.Header.Get(HeaderReportCID),
		Log:      r.Header.Get(HeaderReportLog),
		Time:     s.config.Now(),
	}

	s.mu.Lock()
	s.reports = append(s.reports, report)
	if report.Channel != "" && s.lookupLocked(report.Channel) != nil {
		s.removeLocked(report.Channel, clearReasonReport)
	}
	s.mu.Unlock()

	s.metrics.reports.WithLabelValues(reportLabel(report.Log)).Inc()
	if s.log != nil {
		s.log.Infof("report for channel %q: %q", report.Channel, report.Log)
	}
	w.WriteHeader(http.StatusOK)
}

// Reports returns the reports received so far, oldest first.
func (s *Server) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// HasChannel reports whether the channel currently exists.
func (s *Server) HasChannel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(id) != nil
}

// Document returns the current document of a channel.
func (s *Server) Document(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.lookupLocked(id)
	if ch == nil {
		return nil, false
	}
	return bytes.Clone(ch.doc), true
}

// Seed stores doc in the channel, creating the channel if needed. It lets
// tests and operators place a document without going through a client.
func (s *Server) Seed(id string, doc []byte) error {
	if !ValidChannelID(id) {
		return ErrInvalidChannelID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.lookupLocked(id)
	if ch == nil {
		ch = s.newChannelLocked()
		s.channels[id] = ch
		s.metrics.open.Inc()
	}
	ch.store(bytes.Clone(doc), s.config.Now())
	ch.written = true
	return nil
}

// Purge removes expired channels and returns how many were removed.
func (s *Server) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked()
}

func (s *Server) purgeLocked() int {
	n := 0
	for id, ch := range s.channels {
		if s.expiredLocked(ch) {
			s.removeLocked(id, clearReasonExpired)
			n++
		}
	}
	return n
}

func (s *Server) expiredLocked(ch *channel) bool {
	return s.config.Now().Sub(ch.lastUsed) > s.config.ChannelTTL
}

// lookupLocked returns the live channel or nil, dropping it if expired.
func (s *Server) lookupLocked(id string) *channel {
	ch, ok := s.channels[id]
	if !ok {
		return nil
	}
	if s.expiredLocked(ch) {
		s.removeLocked(id, clearReasonExpired)
		return nil
	}
	return ch
}

func (s *Server) removeLocked(id, reason string) {
	delete(s.channels, id)
	s.metrics.cleared.WithLabelValues(reason).Inc()
	s.metrics.open.Dec()
	if s.log != nil {
		s.log.Debugf("cleared channel %s (%s)", id, reason)
	}
}

func (s *Server) newChannelLocked() *channel {
	ch := &channel{}
	ch.store(EmptyDocument, s.config.Now())
	return ch
}

// newChannelIDLocked draws an unused channel id. The alphabet has 32
// symbols, so masking a random byte is uniform.
func (s *Server) newChannelIDLocked() (string, error) {
	var buf [LengthChannelID]byte
	for attempt := 0; attempt < 64; attempt++ {
		if _, err := io.ReadFull(s.config.Rand, buf[:]); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = ChannelAlphabet[buf[i]&31]
		}
		id := string(buf[:])
		if s.lookupLocked(id) == nil {
			return id, nil
		}
	}
	return "", errors.New("relay: no free channel id")
}

// store replaces the document. The revision is part of the ETag so every
// write yields a new ETag, even for identical content.
func (ch *channel) store(doc []byte, now time.Time) {
	ch.rev++
	sum := sha256.Sum256(doc)
	ch.doc = doc
	ch.etag = fmt.Sprintf("%q", strconv.FormatUint(ch.rev, 10)+"-"+hex.EncodeToString(sum[:8]))
	ch.lastUsed = now
}

func reportLabel(log string) string {
	switch {
	case log == "":
		return "none"
	case strings.HasPrefix(log, "jpake.") && len(log) <= maxReportLabel:
		return log
	default:
		return "other"
	}
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
