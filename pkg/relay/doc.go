// Package relay implements both ends of the key exchange relay protocol.
//
// A relay is an untrusted store-and-forward service holding one JSON document
// per short-lived channel. Peers never talk to each other directly: each PUTs
// its round message to the channel and polls with GET until the other side's
// message appears.
//
//	POST /new_channel      allocate a channel, body is a JSON string id
//	GET  /{channel}        read the document; If-None-Match -> 304
//	PUT  /{channel}        replace the document, response carries the ETag
//	DELETE /{channel}      clear the channel (idempotent)
//	POST /report           report an outcome, clears X-KeyExchange-Cid
//
// Every request carries an X-KeyExchange-Id header identifying the client and
// never an Authorization header.
//
// Client is the peer side. Server is an in-memory relay suitable for tests,
// local networks and single-instance deployments.
package relay
