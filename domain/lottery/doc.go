// Package lottery implements the round ledger of a recurring pooled-stake
// lottery: participants stake a fixed amount to join the open round and the
// manager settles it, paying the whole pool to a single winner.
//
// # Core Types
//
// Ledger: Owns the manager identity, the open round id, the ordered list of
// admitted players and the record of settled rounds.
//
// Settlement: The outcome of a settled round (winner, amount paid, seed).
//
// Event: A journal entry describing an admitted entry or a settlement. A
// journal of events can be replayed to rebuild a Ledger.
//
// # Round Lifecycle
//
// Each round goes through OPEN → SETTLING → SETTLED. SETTLING lasts for the
// duration of the payout and is only visible to mutating calls, which are
// rejected with ErrSettlementInProgress. Queries observe a round either
// before or after settlement, never in between.
//
// # Host Collaborators
//
// The ledger does not hold funds itself. The caller identity and the staked
// value are explicit parameters, the payout is delegated to a Payer, and the
// entropy for winner selection is a seed supplied to Settle.
package lottery
