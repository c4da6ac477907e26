package discovery

import (
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// mockMDNSServer is a mock implementation of MDNSServer for testing.
type mockMDNSServer struct {
	mu             sync.Mutex
	shutdownCalled bool
}

func (m *mockMDNSServer) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalled = true
}

func (m *mockMDNSServer) isShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownCalled
}

// mockMDNSServerFactory is a mock implementation of MDNSServerFactory for testing.
type mockMDNSServerFactory struct {
	mu       sync.Mutex
	servers  []*mockMDNSServer
	lastArgs struct {
		instance string
		service  string
		domain   string
		port     int
		txt      []string
	}
	shouldFail bool
}

func (f *mockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shouldFail {
		return nil, errors.New("multicast unavailable")
	}

	f.lastArgs.instance = instance
	f.lastArgs.service = service
	f.lastArgs.domain = domain
	f.lastArgs.port = port
	f.lastArgs.txt = txt

	server := &mockMDNSServer{}
	f.servers = append(f.servers, server)
	return server, nil
}

func TestNewAdvertiser(t *testing.T) {
	t.Run("default instance", func(t *testing.T) {
		adv, err := NewAdvertiser(AdvertiserConfig{Port: 8080})
		if err != nil {
			t.Fatalf("NewAdvertiser() error = %v", err)
		}
		name := adv.InstanceName()
		if !strings.HasPrefix(name, "jpake relay on ") || len(name) > maxInstanceNameLength {
			t.Errorf("InstanceName() = %q", name)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		for _, port := range []int{0, -1, 65536} {
			if _, err := NewAdvertiser(AdvertiserConfig{Port: port}); err != ErrInvalidPort {
				t.Errorf("NewAdvertiser(port %d) error = %v, want %v", port, err, ErrInvalidPort)
			}
		}
	})

	t.Run("instance too long", func(t *testing.T) {
		_, err := NewAdvertiser(AdvertiserConfig{Port: 8080, Instance: strings.Repeat("x", 64)})
		if err != ErrInvalidInstanceName {
			t.Errorf("NewAdvertiser() error = %v, want %v", err, ErrInvalidInstanceName)
		}
	})
}

func TestAdvertiser_Start(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv, err := NewAdvertiser(AdvertiserConfig{
		Instance:      "kitchen relay",
		Port:          8080,
		ServerFactory: factory,
	})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}

	txt := RelayTXT{Version: 3}

	t.Run("starts successfully", func(t *testing.T) {
		if err := adv.Start(txt); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !adv.IsAdvertising() {
			t.Error("IsAdvertising() = false, want true")
		}

		if factory.lastArgs.instance != "kitchen relay" {
			t.Errorf("instance = %q", factory.lastArgs.instance)
		}
		if factory.lastArgs.service != Service {
			t.Errorf("service = %q, want %q", factory.lastArgs.service, Service)
		}
		if factory.lastArgs.domain != DefaultDomain {
			t.Errorf("domain = %q, want %q", factory.lastArgs.domain, DefaultDomain)
		}
		if factory.lastArgs.port != 8080 {
			t.Errorf("port = %d, want 8080", factory.lastArgs.port)
		}
		if !reflect.DeepEqual(factory.lastArgs.txt, txt.Encode()) {
			t.Errorf("txt = %v, want %v", factory.lastArgs.txt, txt.Encode())
		}
	})

	t.Run("already started", func(t *testing.T) {
		if err := adv.Start(txt); err != ErrAlreadyStarted {
			t.Errorf("Start() error = %v, want %v", err, ErrAlreadyStarted)
		}
	})

	t.Run("stop and restart", func(t *testing.T) {
		if err := adv.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if !factory.servers[0].isShutdown() {
			t.Error("server not shut down")
		}
		if adv.IsAdvertising() {
			t.Error("IsAdvertising() = true after stop, want false")
		}
		if err := adv.Stop(); err != ErrNotStarted {
			t.Errorf("Stop() error = %v, want %v", err, ErrNotStarted)
		}
		if err := adv.Start(txt); err != nil {
			t.Fatalf("Start() after stop error = %v", err)
		}
	})

	t.Run("close", func(t *testing.T) {
		if err := adv.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !factory.servers[1].isShutdown() {
			t.Error("server not shut down on close")
		}
		if err := adv.Start(txt); err != ErrClosed {
			t.Errorf("Start() after close error = %v, want %v", err, ErrClosed)
		}
		if err := adv.Close(); err != ErrClosed {
			t.Errorf("second Close() error = %v, want %v", err, ErrClosed)
		}
	})
}

func TestAdvertiser_StartErrors(t *testing.T) {
	factory := &mockMDNSServerFactory{shouldFail: true}
	adv, err := NewAdvertiser(AdvertiserConfig{Port: 8080, ServerFactory: factory})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}

	if err := adv.Start(RelayTXT{}); err == nil {
		t.Error("Start() with failing factory succeeded")
	}
	if adv.IsAdvertising() {
		t.Error("IsAdvertising() = true after failed start")
	}

	if err := adv.Start(RelayTXT{Scheme: "ftp"}); !errors.Is(err, ErrInvalidTXTRecord) {
		t.Errorf("Start() error = %v, want %v", err, ErrInvalidTXTRecord)
	}
}
