// Package ledger implements an immutable blockchain journal for recording
// the entries and settlements of the lottery.
//
// # Core Components
//
// Blockchain: An append-only log of lottery events with cryptographic
// hash chaining for tamper detection. It implements lottery.Journal.
//
// Block: A single event with its timestamp and the hash links to the
// previous block. The genesis block carries the lottery parameters.
//
// Persister: Optional storage for blocks. When set, a block is persisted
// before it becomes part of the in-memory chain.
//
// # Security Properties
//
// The blockchain provides:
//   - Immutability: Once recorded, blocks cannot be modified
//   - Verifiability: Anyone can verify the integrity of the entire chain
//   - Auditability: Complete history of every entry and payout
//   - Tamper detection: Any modification breaks the hash chain
//
// # Usage
//
// Open a blockchain with the lottery parameters, replay its Events into a
// fresh lottery.Ledger and pass the blockchain as the ledger's journal.
package ledger
