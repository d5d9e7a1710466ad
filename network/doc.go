// Package network exposes a lottery ledger over HTTP. It plays the part of
// the host environment: it authenticates callers, escrows the value attached
// to entries, pays winners and supplies the entropy for each draw.
//
// # Core Components
//
// Request: Signed envelope carrying a mutating call. The caller identity is
// the hex encoded ed25519 key that signed it.
//
// Server: HTTP handler serving the lottery API, the journal event feed and
// Prometheus metrics.
//
// Client: Go client for the API, signing requests with an identity key.
//
// # Serialization
//
// Mutating calls (enter, settle) are serialized by the server, so the
// ledger never sees two of them interleaved. Queries run concurrently.
//
// # Replay Protection
//
// Every request carries a UUID and a timestamp. Requests outside the
// configured time window, or whose UUID was already seen inside it, are
// rejected.
package network
