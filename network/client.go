package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/identity"
)

// APIError is a non 2xx answer of the server.
type APIError struct {
	Status  int
	Code    string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

var codeErrors = map[string]error{
	string(lottery.CodeUnauthorized):       lottery.ErrNotManager,
	string(lottery.CodeEmptyRound):         lottery.ErrEmptyRound,
	string(lottery.CodeNotFound):           lottery.ErrRoundNotFound,
	string(lottery.CodeTransferFailed):     lottery.ErrTransferFailed,
	string(lottery.CodeSettlementInFlight): lottery.ErrSettlementInProgress,
}

// Is lets callers match an APIError against the ledger sentinel that shares
// its code, or its reason for VALIDATION errors.
func (e *APIError) Is(target error) bool {
	if target == nil {
		return false
	}
	if e.Code == string(lottery.CodeValidation) {
		return reasons[e.Reason] == target
	}
	return codeErrors[e.Code] == target
}

// Client calls a lottery server on behalf of an identity.
type Client struct {
	base string
	key  *identity.Key
	http *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRootCAs trusts the certificates in pool, typically the PEM returned by
// GenerateSelfSignedCert.
func WithRootCAs(pool *x509.CertPool) ClientOption {
	return func(cl *Client) {
		cl.http = &http.Client{
			Timeout: cl.http.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			},
		}
	}
}

// NewClient returns a client for the server at addr. A bare host:port is
// reached over http. key may be nil for a client that only queries.
func NewClient(addr string, key *identity.Key, opts ...ClientOption) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	c := &Client{
		base: strings.TrimSuffix(addr, "/"),
		key:  key,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enter joins the open round, attaching value to the call.
func (c *Client) Enter(ctx context.Context, value decimal.Decimal) (EnterReceipt, error) {
	var receipt EnterReceipt
	err := c.send(ctx, "/v1/enter", NewRequest(ActionEnter, value), &receipt)
	return receipt, err
}

// Settle asks the server to draw the winner of the open round.
func (c *Client) Settle(ctx context.Context) (lottery.Settlement, error) {
	var s lottery.Settlement
	err := c.send(ctx, "/v1/settle", NewRequest(ActionSettle, decimal.Zero), &s)
	return s, err
}

func (c *Client) Players(ctx context.Context) (PlayersResponse, error) {
	var resp PlayersResponse
	err := c.get(ctx, "/v1/players", &resp)
	return resp, err
}

func (c *Client) Winner(ctx context.Context, round uint64) (lottery.Identity, error) {
	s, err := c.Settlement(ctx, round)
	return s.Winner, err
}

func (c *Client) Settlement(ctx context.Context, round uint64) (lottery.Settlement, error) {
	var s lottery.Settlement
	err := c.get(ctx, "/v1/winners/"+strconv.FormatUint(round, 10), &s)
	return s, err
}

func (c *Client) Winners(ctx context.Context) ([]lottery.Settlement, error) {
	var s []lottery.Settlement
	err := c.get(ctx, "/v1/winners", &s)
	return s, err
}

func (c *Client) Manager(ctx context.Context) (lottery.Identity, error) {
	var resp ManagerResponse
	err := c.get(ctx, "/v1/manager", &resp)
	return resp.Manager, err
}

func (c *Client) Round(ctx context.Context) (RoundInfo, error) {
	var info RoundInfo
	err := c.get(ctx, "/v1/round", &info)
	return info, err
}

func (c *Client) Balance(ctx context.Context, id lottery.Identity) (decimal.Decimal, error) {
	var resp BalanceResponse
	err := c.get(ctx, "/v1/balances/"+url.PathEscape(string(id)), &resp)
	return resp.Balance, err
}

func (c *Client) send(ctx context.Context, path string, r Request, out any) error {
	if c.key == nil {
		return fmt.Errorf("%s needs a signing key", r.Action)
	}
	if err := r.Sign(c.key); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
			return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: string(body)}
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Reason: e.Reason, Message: e.Error}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
