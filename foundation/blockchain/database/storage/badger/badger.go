// Package badger implements the ability to read and write blocks to a
// BadgerDB directory using the canonical block encoding.
package badger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces block keys inside the store.
var keyPrefix = []byte("blk/")

// Badger represents the storage implementation for reading and storing
// blocks in BadgerDB. This implements the database.Storage interface.
type Badger struct {
	db *badger.DB
}

// New opens or creates the BadgerDB directory.
func New(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger directory is required")
	}

	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}

	return &Badger{db: db}, nil
}

// Close releases all BadgerDB resources.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Write stores the block under its number.
func (b *Badger) Write(block database.Block) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(block.Header.Index), database.EncodeBlock(block))
	})
}

// GetBlock returns the block stored under the specified number.
func (b *Badger) GetBlock(num uint64) (database.Block, error) {
	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(num))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return database.Block{}, fmt.Errorf("%w: %d", database.ErrBlockNotFound, num)
	}
	if err != nil {
		return database.Block{}, err
	}

	return database.DecodeBlock(value)
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (b *Badger) ForEach() database.Iterator {
	return &badgerIterator{storage: b}
}

// Reset removes every stored block.
func (b *Badger) Reset() error {
	return b.db.DropPrefix(keyPrefix)
}

func key(num uint64) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], num)
	return k
}

// =============================================================================

type badgerIterator struct {
	storage *Badger
	current uint64
	eoc     bool
}

// Next retrieves the next block from the store.
func (bi *badgerIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, errors.New("end of chain")
	}

	bi.current++
	block, err := bi.storage.GetBlock(bi.current)
	if errors.Is(err, database.ErrBlockNotFound) {
		bi.eoc = true
	}

	return block, err
}

// Done returns the end of chain value.
func (bi *badgerIterator) Done() bool {
	return bi.eoc
}
