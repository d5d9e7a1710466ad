package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

type Blockchain struct {
	mu          sync.RWMutex
	blocks      []Block
	persister   Persister
	subscribers []chan Block
}

// NewBlockchain creates an in-memory blockchain whose genesis block carries
// meta. The genesis block has index 0 and previous hash "0".
func NewBlockchain(meta map[string]string) *Blockchain {
	bc := &Blockchain{}
	bc.blocks = append(bc.blocks, genesisBlock(meta))
	return bc
}

// Open loads the chain stored by p and verifies it. An empty store is
// initialized with a genesis block carrying meta. A stored chain whose
// genesis metadata differs from meta is rejected.
func Open(p Persister, meta map[string]string) (*Blockchain, error) {
	blocks, err := p.LoadBlocks()
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	bc := &Blockchain{persister: p}
	if len(blocks) == 0 {
		genesis := genesisBlock(meta)
		if err := p.SaveBlock(genesis); err != nil {
			return nil, fmt.Errorf("save genesis: %w", err)
		}
		bc.blocks = []Block{genesis}
		return bc, nil
	}

	bc.blocks = blocks
	if err := bc.Verify(); err != nil {
		return nil, err
	}
	if !maps.Equal(blocks[0].Metadata, meta) {
		return nil, fmt.Errorf("stored chain was created with %v, not %v", blocks[0].Metadata, meta)
	}
	return bc, nil
}

func genesisBlock(meta map[string]string) Block {
	genesis := Block{
		Index:     0,
		Timestamp: time.Now().Unix(),
		PrevHash:  "0",
		Metadata:  maps.Clone(meta),
	}
	genesis.Hash = calculateHash(genesis)
	return genesis
}

// Record appends ev to the chain. It implements lottery.Journal.
func (bc *Blockchain) Record(ev lottery.Event) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	latest := bc.blocks[len(bc.blocks)-1]
	newBlock := Block{
		Index:     latest.Index + 1,
		Timestamp: time.Now().Unix(),
		PrevHash:  latest.Hash,
		Event:     ev,
	}
	newBlock.Hash = calculateHash(newBlock)

	if err := validateBlock(newBlock, latest); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	if bc.persister != nil {
		if err := bc.persister.SaveBlock(newBlock); err != nil {
			return fmt.Errorf("persist block %d: %w", newBlock.Index, err)
		}
	}
	bc.blocks = append(bc.blocks, newBlock)

	for _, sub := range bc.subscribers {
		select {
		case sub <- newBlock:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving every block recorded from now on.
// Blocks are dropped for subscribers that fall more than buffer blocks
// behind. Cancel releases the subscription.
func (bc *Blockchain) Subscribe(buffer int) (blocks <-chan Block, cancel func()) {
	ch := make(chan Block, buffer)
	bc.mu.Lock()
	bc.subscribers = append(bc.subscribers, ch)
	bc.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			bc.mu.Lock()
			defer bc.mu.Unlock()
			for i, sub := range bc.subscribers {
				if sub == ch {
					bc.subscribers = append(bc.subscribers[:i], bc.subscribers[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// GetLatest returns the most recently added block in the blockchain.
func (bc *Blockchain) GetLatest() Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks[len(bc.blocks)-1]
}

// GetByIndex retrieves a block by its index in the chain. Returns an error if the index
// is out of range.
func (bc *Blockchain) GetByIndex(index int) (Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if index < 0 || index >= len(bc.blocks) {
		return Block{}, fmt.Errorf("index %d out of range", index)
	}
	return bc.blocks[index], nil
}

func (bc *Blockchain) Len() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.blocks)
}

// Events returns the recorded events in order, without the genesis block.
func (bc *Blockchain) Events() []lottery.Event {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	events := make([]lottery.Event, 0, len(bc.blocks)-1)
	for _, b := range bc.blocks[1:] {
		events = append(events, b.Event)
	}
	return events
}

// Verify validates the integrity of the entire blockchain by checking the genesis block
// and verifying each subsequent block's hash, index continuity, and previous hash linkage.
func (bc *Blockchain) Verify() error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if len(bc.blocks) == 0 {
		return fmt.Errorf("empty blockchain")
	}
	genesis := bc.blocks[0]
	if genesis.Index != 0 || genesis.PrevHash != "0" || genesis.Hash != calculateHash(genesis) {
		return fmt.Errorf("invalid genesis block")
	}
	for i := 1; i < len(bc.blocks); i++ {
		if err := validateBlock(bc.blocks[i], bc.blocks[i-1]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
	}
	return nil
}

// validateBlock verifies that a block is valid relative to the previous block. It checks
// index continuity, previous hash linkage and current hash validity.
func validateBlock(current, previous Block) error {
	if current.Index != previous.Index+1 {
		return fmt.Errorf("invalid index: expected %d, got %d", previous.Index+1, current.Index)
	}
	if current.PrevHash != previous.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", previous.Hash, current.PrevHash)
	}
	expectedHash := calculateHash(current)
	if current.Hash != expectedHash {
		return fmt.Errorf("invalid hash: expected %s, got %s", expectedHash, current.Hash)
	}
	return nil
}

// calculateHash computes the SHA256 hash of a block based on its index, timestamp,
// previous hash, event and metadata. The event and metadata are JSON marshaled
// before hashing.
func calculateHash(block Block) string {
	eventBytes, _ := json.Marshal(block.Event)
	metaBytes, _ := json.Marshal(block.Metadata)

	data := fmt.Sprintf("%d%d%s%s%s",
		block.Index,
		block.Timestamp,
		block.PrevHash,
		string(eventBytes),
		string(metaBytes),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
