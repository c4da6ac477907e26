package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Service is the DNS-SD service type of a pairing relay.
const Service = "_jpake-relay._tcp"

// DefaultDomain is the mDNS domain.
const DefaultDomain = "local."

// maxInstanceNameLength is the DNS label limit.
const maxInstanceNameLength = 63

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name. If empty, "jpake relay on <hostname>"
	// is used.
	Instance string

	// Port is the port the relay listens on. Required.
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes a relay on the local network.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if config.Instance == "" {
		config.Instance = defaultInstanceName()
	}
	if len(config.Instance) > maxInstanceNameLength {
		return nil, ErrInvalidInstanceName
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a, nil
}

// Start begins advertising the relay.
func (a *Advertiser) Start(txt RelayTXT) error {
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("advertiser: txt validation failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	records := txt.Encode()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%q service=%s domain=%s port=%d",
			a.config.Instance, Service, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", records)
	}

	server, err := a.factory.Register(
		a.config.Instance,
		Service,
		DefaultDomain,
		a.config.Port,
		records,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", Service, err)
	}
	a.server = server

	if a.log != nil {
		a.log.Infof("advertising relay %q on port %d", a.config.Instance, a.config.Port)
	}
	return nil
}

// Stop stops the advertisement.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}
	a.server.Shutdown()
	a.server = nil
	return nil
}

// Close stops the advertisement and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true
	return nil
}

// IsAdvertising returns true while the relay is being advertised.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// InstanceName returns the advertised instance name.
func (a *Advertiser) InstanceName() string {
	return a.config.Instance
}

// CloseOnDone closes the advertiser once ctx is done.
func (a *Advertiser) CloseOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = a.Close()
	}()
}

func defaultInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	host, _, _ = strings.Cut(host, ".")
	name := "jpake relay on " + host
	if len(name) > maxInstanceNameLength {
		name = name[:maxInstanceNameLength]
	}
	return name
}
