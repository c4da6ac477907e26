package commands

import (
	"context"
	"fmt"
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

var (
	relayURL        string
	discoverTimeout time.Duration
	requestTimeout  time.Duration
	pollInterval    time.Duration
	maxTries        int
	firstMaxTries   int

	loggerFactory = logging.NewDefaultLoggerFactory()
	relayClient   *relay.Client
)

// Execute runs the CLI. SIGINT and SIGTERM abort a running pairing.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	defaults := pairing.DefaultConfig()

	root := &cobra.Command{
		Use:          "jpake",
		Short:        "Pair two machines with a PIN and transfer a JSON payload",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveRelay(cmd.Context())
			if err != nil {
				return err
			}
			relayClient, err = relay.NewClient(relay.Config{
				BaseURL:        base,
				RequestTimeout: requestTimeout,
				LoggerFactory:  loggerFactory,
			})
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&relayURL, "relay", "", "relay base URL (default: discover via mDNS)")
	flags.DurationVar(&discoverTimeout, "discover-timeout", discovery.DefaultBrowseTimeout, "how long to look for a relay on the local network")
	flags.DurationVar(&requestTimeout, "request-timeout", relay.DefaultRequestTimeout, "timeout for a single relay request")
	flags.DurationVar(&pollInterval, "poll-interval", defaults.PollInterval, "delay between polls while waiting for the peer")
	flags.IntVar(&maxTries, "max-tries", defaults.MaxTries, "polls per round before giving up")
	flags.IntVar(&firstMaxTries, "first-max-tries", defaults.FirstMsgMaxTries, "receiver polls while waiting for the PIN to be entered")

	root.AddCommand(receiveCmd(), sendCmd())
	return root
}

// resolveRelay returns the --relay flag or the first relay found via mDNS.
func resolveRelay(ctx context.Context) (string, error) {
	if relayURL != "" {
		return relayURL, nil
	}

	resolver, err := discovery.NewResolver(discovery.ResolverConfig{
		BrowseTimeout: discoverTimeout,
		Version:       pairing.MessageVersion,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return "", fmt.Errorf("mDNS unavailable, use --relay: %w", err)
	}
	found, err := resolver.Discover(ctx)
	if err != nil {
		return "", fmt.Errorf("no relay found on the local network, use --relay: %w", err)
	}
	base, err := found.URL()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "using relay %q at %s\n", found.Instance, base)
	return base, nil
}

// newPairingClient builds a pairing client from the flags.
func newPairingClient(ctrl pairing.Controller) (*pairing.Client, error) {
	return pairing.NewClient(pairing.Config{
		Relay:            relayClient,
		Controller:       ctrl,
		PollInterval:     pollInterval,
		MaxTries:         maxTries,
		FirstMsgMaxTries: firstMaxTries,
		LoggerFactory:    loggerFactory,
	})
}

// describe turns a pairing failure into a message for the user.
func describe(err error) error {
	switch pairing.KindOf(err) {
	case pairing.KindKeyMismatch:
		return fmt.Errorf("the PIN did not match: %w", err)
	case pairing.KindTimeout:
		return fmt.Errorf("the other side did not answer in time: %w", err)
	case pairing.KindNoData:
		return fmt.Errorf("the other side gave up: %w", err)
	case pairing.KindUserAbort:
		return fmt.Errorf("cancelled: %w", err)
	default:
		return err
	}
}
