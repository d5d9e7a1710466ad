package network

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

// EnterReceipt acknowledges an accepted entry.
type EnterReceipt struct {
	Round   uint64 `json:"round"`
	Players int    `json:"players"`
}

type PlayersResponse struct {
	Round   uint64             `json:"round"`
	Players []lottery.Identity `json:"players"`
}

type ManagerResponse struct {
	Manager lottery.Identity `json:"manager"`
}

// RoundInfo describes the open round.
type RoundInfo struct {
	Round   uint64          `json:"round"`
	Stake   decimal.Decimal `json:"stake"`
	Pool    decimal.Decimal `json:"pool"`
	Players int             `json:"players"`
}

type BalanceResponse struct {
	Account lottery.Identity `json:"account"`
	Balance decimal.Decimal  `json:"balance"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// reasons tells apart the ledger sentinels sharing the VALIDATION code.
var reasons = map[string]error{
	"WRONG_STAKE":      lottery.ErrWrongStake,
	"ALREADY_ENTERED":  lottery.ErrAlreadyEntered,
	"INVALID_IDENTITY": lottery.ErrInvalidIdentity,
}

func reasonOf(err error) string {
	for reason, sentinel := range reasons {
		if errors.Is(err, sentinel) {
			return reason
		}
	}
	return ""
}

// Codes for failures that happen before a call reaches the ledger.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeBadSignature      = "BAD_SIGNATURE"
	CodeReplayed          = "REPLAYED"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)
