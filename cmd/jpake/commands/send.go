package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/backkem/jpake/pkg/pairing"
)

// send <pin> [json]: deliver a payload to the receiver showing pin.
func sendCmd() *cobra.Command {
	var (
		file string
		text bool
	)

	cmd := &cobra.Command{
		Use:   "send <pin> [json]",
		Short: "Enter the receiver's PIN and send a JSON payload",
		Long: "Enter the receiver's PIN and send a JSON payload. The payload is the second\n" +
			"argument, the contents of --file, or stdin (use --file -).",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg *string
			if len(args) == 2 {
				arg = &args[1]
			}
			payload, err := readPayload(arg, file, text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			client, err := newPairingClient(nil)
			if err != nil {
				return err
			}
			if err := client.SendWithPIN(cmd.Context(), args[0], payload); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the payload from this file (- for stdin)")
	cmd.Flags().BoolVar(&text, "text", false, "send the input as a JSON string instead of parsing it")
	return cmd
}

// readPayload picks the payload source. With text set, the input is wrapped
// as a JSON string.
func readPayload(arg *string, file string, text bool, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch {
	case arg != nil && file != "":
		return nil, fmt.Errorf("give the payload as an argument or with --file, not both")
	case arg != nil:
		data = []byte(*arg)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return nil, fmt.Errorf("no payload: pass it as an argument or with --file")
	}

	if text {
		return json.Marshal(string(data))
	}
	if !json.Valid(data) {
		return nil, pairing.ErrInvalidPayload
	}
	return json.RawMessage(data), nil
}
