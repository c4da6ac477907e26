// jpake-relay runs an in-memory pairing relay.
//
// Usage:
//
//	jpake-relay [--listen :8089] [--advertise] [--max-gets 6] [--ttl 5m]
//
// Routes:
//
//	POST /new_channel, GET|PUT|DELETE /{channel}, POST /report
//	GET  /metrics      prometheus metrics
//
// With --advertise the relay announces itself as _jpake-relay._tcp via mDNS
// so that "jpake" clients on the local network find it without --relay.
// All state is held in memory and lost on exit.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/jpake/pkg/discovery"
	"github.com/backkem/jpake/pkg/pairing"
	"github.com/backkem/jpake/pkg/relay"
)

type options struct {
	listen    string
	advertise bool
	instance  string
	maxGets   int
	ttl       time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:          "jpake-relay",
		Short:        "Run an in-memory J-PAKE pairing relay",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, logging.NewDefaultLoggerFactory())
		},
	}
	cmd.Flags().StringVar(&o.listen, "listen", ":8089", "listen address")
	cmd.Flags().BoolVar(&o.advertise, "advertise", false, "announce the relay on the local network via mDNS")
	cmd.Flags().StringVar(&o.instance, "instance", "", "mDNS instance name (default: jpake relay on <hostname>)")
	cmd.Flags().IntVar(&o.maxGets, "max-gets", relay.DefaultMaxGets, "reads after which a written channel is cleared")
	cmd.Flags().DurationVar(&o.ttl, "ttl", relay.DefaultChannelTTL, "lifetime of an idle channel")
	return cmd
}

func run(ctx context.Context, o options, lf logging.LoggerFactory) error {
	log := lf.NewLogger("jpake-relay")

	srv := relay.NewServer(relay.ServerConfig{
		MaxGets:       o.maxGets,
		ChannelTTL:    o.ttl,
		LoggerFactory: lf,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.MetricsHandler())
	mux.Handle("/", srv)

	ln, err := net.Listen("tcp", o.listen)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if o.advertise {
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Instance:      o.instance,
			Port:          ln.Addr().(*net.TCPAddr).Port,
			LoggerFactory: lf,
		})
		if err != nil {
			ln.Close()
			return err
		}
		if err := adv.Start(discovery.RelayTXT{Version: pairing.MessageVersion}); err != nil {
			ln.Close()
			return err
		}
		adv.CloseOnDone(ctx)
	}

	go purgeLoop(ctx, srv, o.ttl, log)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("relay listening on %s", ln.Addr())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// purgeLoop drops expired channels that nobody touches again.
func purgeLoop(ctx context.Context, srv *relay.Server, ttl time.Duration, log logging.LeveledLogger) {
	if ttl <= 0 {
		ttl = relay.DefaultChannelTTL
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := srv.Purge(); n > 0 {
				log.Debugf("purged %d expired channels", n)
			}
		}
	}
}
