// Package pairing runs a J-PAKE PIN pairing between two devices over a relay.
//
// The receiver allocates a relay channel, shows an eight symbol secret joined
// with the four symbol channel id as a PIN, and waits. The sender enters that
// PIN, both sides run three rounds through the channel, and the sender's
// payload arrives encrypted under the agreed key:
//
//	rx, _ := pairing.NewClient(pairing.Config{Relay: relayClient, Controller: ui})
//	err := rx.ReceiveNoPIN(ctx) // ui.DisplayPIN, then ui.OnComplete(payload)
//
//	tx, _ := pairing.NewClient(pairing.Config{Relay: relayClient})
//	err := tx.SendWithPIN(ctx, pin, payload)
//
// A failed session returns an *Error whose Kind is also reported to the relay.
// A Client runs a single session.
package pairing
