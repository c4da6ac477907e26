// Package commands defines the jpake CLI.
//
// Commands
//
//   - receive   Show a PIN and wait for a sender to deliver its payload
//   - send      Enter a PIN and deliver a JSON payload to the receiver
//
// The root command resolves the relay before any subcommand runs: the --relay
// flag if given, otherwise the first relay answering mDNS discovery.
package commands
