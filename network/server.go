package network

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luca-patrignani/mental-lottery/bank"
	"github.com/luca-patrignani/mental-lottery/domain/draw"
	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/ledger"
)

const maxRequestBytes = 1 << 20

// Server exposes a lottery ledger over HTTP. It is the host of the ledger:
// it authenticates callers, escrows the value attached to an entry, pays
// winners through the bank and supplies settlement seeds.
type Server struct {
	// mu serializes mutating calls so that escrow and ledger stay in step.
	mu      sync.Mutex
	ledger  *lottery.Ledger
	bank    *bank.Bank
	chain   *ledger.Blockchain
	guard   *replayGuard
	metrics *metrics
	logger  *slog.Logger
	seed    func() []byte
	now     func() time.Time
	ttl     time.Duration

	tlsConfig *tls.Config
	server    *http.Server
	done      chan struct{}
	closeOnce sync.Once
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSeedSource replaces draw.NewSeed as the source of settlement seeds.
func WithSeedSource(seed func() []byte) ServerOption {
	return func(s *Server) {
		s.seed = seed
	}
}

// WithRequestTTL sets how far a request timestamp may be from the server
// clock. Request ids are remembered for the same duration.
func WithRequestTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// WithChain attaches the journal backing the ledger. It enables the event feed.
func WithChain(bc *ledger.Blockchain) ServerOption {
	return func(s *Server) {
		s.chain = bc
	}
}

func WithCertificate(cert tls.Certificate) ServerOption {
	return func(s *Server) {
		if s.tlsConfig == nil {
			s.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		s.tlsConfig.Certificates = append(s.tlsConfig.Certificates, cert)
	}
}

func NewServer(l *lottery.Ledger, b *bank.Bank, opts ...ServerOption) *Server {
	s := &Server{
		ledger:  l,
		bank:    b,
		metrics: newMetrics(),
		logger:  slog.New(slog.DiscardHandler),
		seed:    draw.NewSeed,
		now:     time.Now,
		ttl:     30 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = newReplayGuard(s.ttl, s.now)
	s.refreshGauges()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/enter", s.handleEnter)
	mux.HandleFunc("POST /v1/settle", s.handleSettle)
	mux.HandleFunc("GET /v1/players", s.handlePlayers)
	mux.HandleFunc("GET /v1/winners", s.handleWinners)
	mux.HandleFunc("GET /v1/winners/{round}", s.handleWinner)
	mux.HandleFunc("GET /v1/manager", s.handleManager)
	mux.HandleFunc("GET /v1/round", s.handleRound)
	mux.HandleFunc("GET /v1/balances/{id}", s.handleBalance)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return s.instrument(mux)
}

// Start serves on l in the background, over TLS when a certificate was given.
func (s *Server) Start(l net.Listener) {
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
	}
	s.logger.Info("lottery server listening", "addr", l.Addr().String(), "tls", s.tlsConfig != nil)
	go func() {
		err := s.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
		}
	}()
}

// Close disconnects event subscribers and shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.server.Shutdown(ctx)
}

func (s *Server) handleEnter(rw http.ResponseWriter, req *http.Request) {
	r, ok := s.authenticate(rw, req, ActionEnter)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held := false
	if r.Value.IsPositive() {
		if err := s.bank.Hold(r.Caller, r.Value); err != nil {
			s.reject(rw, ActionEnter, err)
			return
		}
		held = true
	}
	if err := s.ledger.Enter(r.Caller, r.Value); err != nil {
		if held {
			if rerr := s.bank.Release(r.Caller, r.Value); rerr != nil {
				s.logger.Error("refund failed", "caller", r.Caller, "amount", r.Value, "err", rerr)
			}
		}
		s.reject(rw, ActionEnter, err)
		return
	}

	s.metrics.entries.Inc()
	s.refreshGauges()
	s.logger.Info("entry accepted", "request", r.ID, "caller", r.Caller, "round", s.ledger.CurrentRoundID())
	writeJSON(rw, http.StatusOK, EnterReceipt{
		Round:   s.ledger.CurrentRoundID(),
		Players: len(s.ledger.Players()),
	})
}

func (s *Server) handleSettle(rw http.ResponseWriter, req *http.Request) {
	r, ok := s.authenticate(rw, req, ActionSettle)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settled, err := s.ledger.Settle(req.Context(), r.Caller, s.seed())
	if settled.Round != 0 {
		// the winner has been paid, even when err is a FatalError
		s.metrics.settlements.Inc()
		s.metrics.payouts.Add(settled.Amount.InexactFloat64())
		s.refreshGauges()
	}
	if err != nil {
		s.reject(rw, ActionSettle, err)
		return
	}

	s.logger.Info("round settled", "request", r.ID, "round", settled.Round, "winner", settled.Winner)
	writeJSON(rw, http.StatusOK, settled)
}

func (s *Server) handlePlayers(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, PlayersResponse{
		Round:   s.ledger.CurrentRoundID(),
		Players: s.ledger.Players(),
	})
}

func (s *Server) handleWinners(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, s.ledger.Winners())
}

func (s *Server) handleWinner(rw http.ResponseWriter, req *http.Request) {
	round, err := strconv.ParseUint(req.PathValue("round"), 10, 64)
	if err != nil {
		writeError(rw, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid round %q", req.PathValue("round")))
		return
	}
	settled, err := s.ledger.Settlement(round)
	if err != nil {
		code := lottery.CodeOf(err)
		writeError(rw, code.HTTPStatus(), string(code), err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, settled)
}

func (s *Server) handleManager(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, ManagerResponse{Manager: s.ledger.Manager()})
}

func (s *Server) handleRound(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, RoundInfo{
		Round:   s.ledger.CurrentRoundID(),
		Stake:   s.ledger.Stake(),
		Pool:    s.ledger.Pool(),
		Players: len(s.ledger.Players()),
	})
}

func (s *Server) handleBalance(rw http.ResponseWriter, req *http.Request) {
	id := lottery.Identity(req.PathValue("id"))
	writeJSON(rw, http.StatusOK, BalanceResponse{Account: id, Balance: s.bank.Balance(id)})
}

// authenticate decodes a signed request and checks its signature, action and
// freshness. It writes the error response itself when the request is refused.
func (s *Server) authenticate(rw http.ResponseWriter, req *http.Request, action Action) (Request, bool) {
	var r Request
	dec := json.NewDecoder(http.MaxBytesReader(rw, req.Body, maxRequestBytes))
	if err := dec.Decode(&r); err != nil {
		s.metrics.rejected.WithLabelValues(string(action), CodeBadRequest).Inc()
		writeError(rw, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("decode request: %v", err))
		return Request{}, false
	}
	if r.Action != action {
		s.metrics.rejected.WithLabelValues(string(action), CodeBadRequest).Inc()
		writeError(rw, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("request action %q sent to %s", r.Action, action))
		return Request{}, false
	}
	if err := r.Verify(); err != nil {
		s.metrics.rejected.WithLabelValues(string(action), CodeBadSignature).Inc()
		writeError(rw, http.StatusUnauthorized, CodeBadSignature, err.Error())
		return Request{}, false
	}
	if err := s.guard.check(r); err != nil {
		s.metrics.rejected.WithLabelValues(string(action), CodeReplayed).Inc()
		writeError(rw, http.StatusConflict, CodeReplayed, err.Error())
		return Request{}, false
	}
	return r, true
}

func (s *Server) reject(rw http.ResponseWriter, action Action, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		status, code = http.StatusPaymentRequired, CodeInsufficientFunds
	case errors.Is(err, bank.ErrInvalidAmount):
		status, code = http.StatusBadRequest, string(lottery.CodeValidation)
	default:
		c := lottery.CodeOf(err)
		status, code = c.HTTPStatus(), string(c)
	}
	s.metrics.rejected.WithLabelValues(string(action), code).Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error("call failed", "action", action, "code", code, "err", err)
	} else {
		s.logger.Debug("call rejected", "action", action, "code", code, "err", err)
	}
	writeJSON(rw, status, errorResponse{Error: err.Error(), Code: code, Reason: reasonOf(err)})
}

func (s *Server) refreshGauges() {
	s.metrics.round.Set(float64(s.ledger.CurrentRoundID()))
	s.metrics.players.Set(float64(len(s.ledger.Players())))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, errorResponse{Error: msg, Code: code})
}
