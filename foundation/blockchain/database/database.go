// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in memory index of the chain.
package database

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain. The
// genesis block is never stored, the first stored block is number 1.
type Storage interface {
	Write(block Block) error
	GetBlock(num uint64) (Block, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// Database manages the accepted blocks of the chain. It keeps every block in
// memory with an index of confirmed transaction ids and the cumulative work,
// and mirrors the blocks to storage. Callers serialize writes; reads are
// safe at any time.
type Database struct {
	mu sync.RWMutex

	genesis   genesis.Genesis
	blocks    []Block         // blocks[i] has index i, blocks[0] is genesis.
	confirmed map[Hash]uint64 // Transaction id to block index.
	work      *big.Int

	storage Storage
}

// New constructs a new database and loads any blocks already in storage.
// The stored chain is walked in full with IsChainValid before it is used.
func New(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	genesisBlock := NewGenesisBlock(gen)

	blocks := []Block{genesisBlock}

	iter := storage.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	if err := IsChainValid(blocks, genesisBlock, gen.Difficulty, evHandler); err != nil {
		return nil, fmt.Errorf("stored chain is invalid: %w", err)
	}

	db := Database{
		genesis: gen,
		storage: storage,
	}
	db.setBlocks(blocks)

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.storage.Close()
}

// GenesisBlock returns the genesis block.
func (db *Database) GenesisBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.blocks[0]
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.blocks[len(db.blocks)-1]
}

// CumulativeWork returns a copy of the work of the chain.
func (db *Database) CumulativeWork() *big.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return new(big.Int).Set(db.work)
}

// Blocks returns a copy of the chain starting with genesis.
func (db *Database) Blocks() []Block {
	return db.BlocksFrom(0)
}

// BlocksFrom returns a copy of the chain starting at the specified index.
func (db *Database) BlocksFrom(index uint64) []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if index >= uint64(len(db.blocks)) {
		return nil
	}

	out := make([]Block, uint64(len(db.blocks))-index)
	copy(out, db.blocks[index:])
	return out
}

// GetBlock returns the block at the specified index.
func (db *Database) GetBlock(num uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if num >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, num)
	}

	return db.blocks[num], nil
}

// IsConfirmed reports whether the transaction id is in the chain.
func (db *Database) IsConfirmed(id Hash) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.confirmed[id]
	return exists
}

// ConfirmedIn returns the index of the block holding the transaction.
func (db *Database) ConfirmedIn(id Hash) (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, exists := db.confirmed[id]
	return idx, exists
}

// Write adds a new validated block to the chain, first to storage and then
// to memory. Nothing changes if storage fails.
func (db *Database) Write(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	next := uint64(len(db.blocks))
	if block.Header.Index != next {
		return newValidationError(ErrChainDiscontinuity, block.Header.Index, "next block is %d", next)
	}

	if err := db.storage.Write(block); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Index, err)
	}

	db.blocks = append(db.blocks, block)
	for _, tx := range block.Trans {
		db.confirmed[tx.ID] = block.Header.Index
	}
	db.work.Add(db.work, Work(db.genesis.Difficulty))

	return nil
}

// Replace swaps the chain for the specified validated chain, which must
// start with the same genesis block. If storage fails part way the previous
// chain is written back and the error is returned.
func (db *Database) Replace(blocks []Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(blocks) == 0 || blocks[0].Hash() != db.blocks[0].Hash() {
		return newValidationError(ErrGenesisMismatch, 0, "replacement does not share genesis")
	}

	if err := db.rewrite(blocks); err != nil {
		if rerr := db.rewrite(db.blocks); rerr != nil {
			return fmt.Errorf("replacing chain: %w: restoring chain: %s", err, rerr)
		}
		return fmt.Errorf("replacing chain: %w", err)
	}

	chain := make([]Block, len(blocks))
	copy(chain, blocks)
	db.setBlocks(chain)

	return nil
}

// Reset re-initializes the database back to the genesis block.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	db.setBlocks(db.blocks[:1:1])

	return nil
}

// =============================================================================

// rewrite resets storage and writes every block after genesis.
func (db *Database) rewrite(blocks []Block) error {
	if err := db.storage.Reset(); err != nil {
		return err
	}

	for _, block := range blocks[1:] {
		if err := db.storage.Write(block); err != nil {
			return err
		}
	}

	return nil
}

// setBlocks rebuilds the in memory index for the chain.
func (db *Database) setBlocks(blocks []Block) {
	db.blocks = blocks
	db.confirmed = make(map[Hash]uint64)
	for _, block := range blocks {
		for _, tx := range block.Trans {
			db.confirmed[tx.ID] = block.Header.Index
		}
	}
	db.work = CumulativeWork(blocks, db.genesis.Difficulty)
}
