package draw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"go.dedis.ch/kyber/v4/suites"
	"go.dedis.ch/kyber/v4/util/random"
)

// SeedSize is the size of seeds returned by NewSeed.
const SeedSize = 32

var (
	ErrNoCandidates = errors.New("no candidates to draw from")
	ErrEmptySeed    = errors.New("empty seed")
)

var suite suites.Suite = suites.MustFind("Ed25519")

// XOFSelector draws uniformly among candidates. The seed and the candidates
// are absorbed by the suite's extendable output function, whose output
// stream feeds a rejection sampler.
type XOFSelector struct{}

// Select returns an index in [0, len(candidates)).

func (XOFSelector) Select(seed []byte, candidates []string) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrNoCandidates
	}
	if len(seed) == 0 {
		return 0, ErrEmptySeed
	}
	xof := suite.XOF(transcript(seed, candidates))
	// random.Int samples [1, mod), so draw in [1, n] and shift down.
	v := random.Int(big.NewInt(int64(len(candidates))+1), xof)
	return int(v.Int64()) - 1, nil
}

// transcript length-prefixes every field so that different candidate lists
// never produce the same input.
func transcript(seed []byte, candidates []string) []byte {
	size := 4 + len(seed)
	for _, c := range candidates {
		size += 4 + len(c)
	}
	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint32(b, uint32(len(seed)))
	b = append(b, seed...)
	for _, c := range candidates {
		b = binary.BigEndian.AppendUint32(b, uint32(len(c)))
		b = append(b, c...)
	}
	return b
}

// SelectorFunc adapts a function to the selector interface.
type SelectorFunc func(seed []byte, candidates []string) (int, error)

func (f SelectorFunc) Select(seed []byte, candidates []string) (int, error) {
	return f(seed, candidates)
}

// Selector is implemented by every winner selection policy.
type Selector interface {
	Select(seed []byte, candidates []string) (int, error)
}

// NewSeed returns SeedSize bytes from the suite's random stream, which is
// backed by crypto/rand.
func NewSeed() []byte {
	seed := make([]byte, SeedSize)
	suite.RandomStream().XORKeyStream(seed, seed)
	return seed
}

// Audit checks that winner is the candidate sel draws for seed.
func Audit(sel Selector, seed []byte, candidates []string, winner string) error {
	idx, err := sel.Select(seed, candidates)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(candidates) {
		return fmt.Errorf("select winner: index %d out of range [0, %d)", idx, len(candidates))
	}
	if candidates[idx] != winner {
		return fmt.Errorf("seed draws %s, recorded winner is %s", candidates[idx], winner)
	}
	return nil
}
