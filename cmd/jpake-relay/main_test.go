package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"

	"github.com/backkem/jpake/pkg/relay"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRunServesRelayAndMetrics(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, options{listen: addr, maxGets: 6, ttl: time.Minute}, logging.NewDefaultLoggerFactory())
	}()

	client, err := relay.NewClient(relay.Config{BaseURL: "http://" + addr})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	var id string
	for i := 0; i < 50; i++ {
		if id, err = client.Allocate(context.Background()); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if !relay.ValidChannelID(id) {
		t.Errorf("invalid channel id %q", id)
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading /metrics failed: %v", err)
	}
	if !strings.Contains(string(body), "jpake_relay_channels_allocated_total 1") {
		t.Errorf("metrics missing allocation counter:\n%s", body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
}
