// jpake pairs two machines with a short PIN and hands a JSON payload from one
// to the other through a relay.
//
// Usage:
//
//	jpake receive [--relay URL] [--out FILE]
//	jpake send PIN [JSON] [--relay URL] [--file FILE]
//
// Without --relay, a relay is looked up on the local network via mDNS.
// Log levels are controlled with the PION_LOG_* environment variables.
package main

import (
	"os"

	"github.com/backkem/jpake/cmd/jpake/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
