package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/backkem/jpake/pkg/pairing"
)

// receive: show a PIN and wait for the payload.
func receiveCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Show a PIN and wait for a sender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var received json.RawMessage
			client, err := newPairingClient(pairing.ControllerFuncs{
				DisplayPINFunc: func(pin string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "PIN: %s\n", pairing.FormatPIN(pin))
					fmt.Fprintln(cmd.ErrOrStderr(), "waiting for the sender...")
				},
				OnCompleteFunc: func(payload json.RawMessage) {
					received = payload
				},
			})
			if err != nil {
				return err
			}

			if err := client.ReceiveNoPIN(cmd.Context()); err != nil {
				return describe(err)
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, received, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')

			if out == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			return os.WriteFile(out, buf.Bytes(), 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the payload to this file instead of stdout")
	return cmd
}
