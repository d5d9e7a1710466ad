package lottery

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWrongStake           = errors.New("staked amount does not match the required stake")
	ErrAlreadyEntered       = errors.New("player already entered the current round")
	ErrInvalidIdentity      = errors.New("invalid identity")
	ErrNotManager           = errors.New("only the manager can settle a round")
	ErrEmptyRound           = errors.New("current round has no players")
	ErrRoundNotFound        = errors.New("round has not been settled")
	ErrTransferFailed       = errors.New("payout transfer failed")
	ErrSettlementInProgress = errors.New("settlement in progress")
)

// FatalError reports a settlement whose payout went through but whose
// bookkeeping could not be made durable.
type FatalError struct {
	Round uint64
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("round %d paid out but not recorded: %v", e.Round, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Code is a machine-readable error class.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeValidation         Code = "VALIDATION"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeEmptyRound         Code = "EMPTY_ROUND"
	CodeNotFound           Code = "NOT_FOUND"
	CodeTransferFailed     Code = "TRANSFER_FAILED"
	CodeSettlementInFlight Code = "SETTLEMENT_IN_PROGRESS"
	CodeFatal              Code = "FATAL"
)

// CodeOf classifies err. A nil error has no code.
func CodeOf(err error) Code {
	var fatal *FatalError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fatal):
		return CodeFatal
	case errors.Is(err, ErrWrongStake), errors.Is(err, ErrAlreadyEntered), errors.Is(err, ErrInvalidIdentity):
		return CodeValidation
	case errors.Is(err, ErrNotManager):
		return CodeUnauthorized
	case errors.Is(err, ErrEmptyRound):
		return CodeEmptyRound
	case errors.Is(err, ErrRoundNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTransferFailed):
		return CodeTransferFailed
	case errors.Is(err, ErrSettlementInProgress):
		return CodeSettlementInFlight
	default:
		return CodeUnknown
	}
}

// HTTPStatus maps codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case "":
		return http.StatusOK
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeEmptyRound, CodeSettlementInFlight:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same call may succeed later without changing
// its input.
func (c Code) Retryable() bool {
	return c == CodeEmptyRound || c == CodeSettlementInFlight
}
