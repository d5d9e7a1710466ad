package ledger

import "github.com/luca-patrignani/mental-lottery/domain/lottery"

// Block is a single link of the chain. The genesis block has no event.
type Block struct {
	Index     int               `json:"index"`
	Timestamp int64             `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
	Event     lottery.Event     `json:"event"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Genesis metadata keys.
const (
	MetaManager = "manager"
	MetaStake   = "stake"
)

// Persister stores blocks outside of the process.
type Persister interface {
	SaveBlock(b Block) error
	LoadBlocks() ([]Block, error)
}
