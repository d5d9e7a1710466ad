package lottery

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err    error
		code   Code
		status int
	}{
		{nil, "", http.StatusOK},
		{fmt.Errorf("enter: %w", ErrWrongStake), CodeValidation, http.StatusBadRequest},
		{ErrAlreadyEntered, CodeValidation, http.StatusBadRequest},
		{ErrInvalidIdentity, CodeValidation, http.StatusBadRequest},
		{ErrNotManager, CodeUnauthorized, http.StatusForbidden},
		{ErrEmptyRound, CodeEmptyRound, http.StatusConflict},
		{ErrSettlementInProgress, CodeSettlementInFlight, http.StatusConflict},
		{fmt.Errorf("winner: %w", ErrRoundNotFound), CodeNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: %w", ErrTransferFailed, errors.New("boom")), CodeTransferFailed, http.StatusBadGateway},
		{&FatalError{Round: 3, Err: errors.New("disk")}, CodeFatal, http.StatusInternalServerError},
		{errors.New("other"), CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			code := CodeOf(tt.err)
			if code != tt.code {
				t.Fatalf("CodeOf(%v) = %q, want %q", tt.err, code, tt.code)
			}
			if code.HTTPStatus() != tt.status {
				t.Errorf("status = %d, want %d", code.HTTPStatus(), tt.status)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !CodeEmptyRound.Retryable() {
		t.Error("empty round should be retryable")
	}
	if CodeValidation.Retryable() || CodeNotFound.Retryable() {
		t.Error("validation and not found are not retryable")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.01", "0.01", false},
		{"0.01 ether", "0.01", false},
		{"10000000000000000 wei", "0.01", false},
		{"20 wei", "0.00000000000000002", false},
		{"1 gwei", "0.000000001", false},
		{"2 ETH", "2", false},
		{"", "", true},
		{"abc", "", true},
		{"1 doge", "", true},
		{"1 ether extra", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatWei(t *testing.T) {
	if got := FormatWei(DefaultStake); got != "10000000000000000 wei" {
		t.Errorf("FormatWei(0.01) = %q", got)
	}
}
