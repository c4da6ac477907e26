package discovery

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 5 * time.Second

// Relay is a relay found on the local network.
type Relay struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// HostName is the target host name.
	HostName string

	// Port is the relay port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// TXT holds the advertised scheme, path and version.
	TXT RelayTXT

	zone string
}

// URLs returns one relay base URL per dialable address, most preferred first.
// Link-local IPv6 addresses are skipped unless the browse was bound to a
// single interface.
func (r *Relay) URLs() []string {
	var out []string
	for _, ip := range r.IPs {
		if ip.To4() == nil && ip.IsLinkLocalUnicast() && r.zone == "" {
			continue
		}
		u := url.URL{
			Scheme: r.TXT.scheme(),
			Host:   hostPort(ip, r.zone, r.Port),
			Path:   r.TXT.path(),
		}
		out = append(out, u.String())
	}
	return out
}

// URL returns the preferred relay base URL.
func (r *Relay) URL() (string, error) {
	urls := r.URLs()
	if len(urls) == 0 {
		return "", ErrNoAddresses
	}
	return urls[0], nil
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse sends entries for services of the given type until ctx is done.
	// It must not close entries.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver(ifaces []net.Interface) (*zeroconfResolver, error) {
	var opts []zeroconf.ClientOption
	if len(ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	r, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

// Browse forwards from a private channel, since zeroconf closes the channel it
// is given.
func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	found := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Browse(ctx, service, domain, found); err != nil {
		return err
	}
	for {
		select {
		case entry, ok := <-found:
			if !ok {
				return ctx.Err()
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// Interfaces restricts browsing to these interfaces. If nil, all
	// multicast interfaces are used.
	Interfaces []net.Interface

	// BrowseTimeout bounds browse operations when ctx has no deadline.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// Version, if non-zero, skips relays advertising a different version.
	Version int

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers relays via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	zone     string
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver(config.Interfaces)
		if err != nil {
			return nil, err
		}
		resolver = zr
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if len(config.Interfaces) == 1 {
		r.zone = config.Interfaces[0].Name
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse discovers relays on the network. The returned channel receives
// relays until ctx is done or the browse timeout expires, then it is closed.
func (r *Resolver) Browse(ctx context.Context) (<-chan Relay, error) {
	results := make(chan Relay)
	entries := make(chan *zeroconf.ServiceEntry)

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer close(entries)
		if err := r.resolver.Browse(ctx, Service, DefaultDomain, entries); err != nil && ctx.Err() == nil && r.log != nil {
			r.log.Warnf("mDNS browse failed: %v", err)
		}
	}()

	go func() {
		defer cancel()
		defer close(results)
		for entry := range entries {
			relay, ok := r.toRelay(entry)
			if !ok {
				continue
			}
			select {
			case results <- relay:
			case <-ctx.Done():
				// Let the browse goroutine exit.
				for range entries {
				}
				return
			}
		}
	}()

	return results, nil
}

// Discover returns the first relay with a dialable address.
func (r *Resolver) Discover(ctx context.Context) (*Relay, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relays, err := r.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for relay := range relays {
		if len(relay.URLs()) == 0 {
			continue
		}
		found := relay
		cancel()
		for range relays {
		}
		return &found, nil
	}
	return nil, ErrRelayNotFound
}

// toRelay converts a zeroconf.ServiceEntry, dropping entries with a malformed
// or mismatched TXT record.
func (r *Resolver) toRelay(entry *zeroconf.ServiceEntry) (Relay, bool) {
	if entry == nil {
		return Relay{}, false
	}
	txt, err := ParseRelayTXT(entry.Text)
	if err != nil {
		if r.log != nil {
			r.log.Debugf("ignoring relay %q: %v", entry.Instance, err)
		}
		return Relay{}, false
	}
	if r.config.Version != 0 && txt.Version != 0 && txt.Version != r.config.Version {
		if r.log != nil {
			r.log.Debugf("ignoring relay %q: version %d", entry.Instance, txt.Version)
		}
		return Relay{}, false
	}

	var ips []net.IP
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return Relay{
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		IPs:      SortIPsByPreference(ips),
		TXT:      txt,
		zone:     r.zone,
	}, true
}
