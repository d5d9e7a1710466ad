// Package draw selects lottery winners.
//
// Selection is a deterministic function of a seed and the ordered list of
// candidates, so any draw can be reproduced and audited by whoever knows the
// seed. The source of the seed is up to the host: NewSeed reads it from the
// system CSPRNG, a verifiable random function or a beacon can be plugged in
// instead without touching the round ledger.
package draw
