// Package bolt implements the ability to read and write blocks to a bbolt
// database file. Blocks are stored in their canonical encoding keyed by the
// big-endian block number so the bucket iterates in chain order.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("blocks")

// Bolt represents the storage implementation for reading and storing blocks
// in a bbolt file. This implements the database.Storage interface.
type Bolt struct {
	db *bbolt.DB
}

// New opens or creates the bbolt file at the specified path.
func New(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close releases the bbolt file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Write stores the block under its number.
func (b *Bolt) Write(block database.Block) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(block.Header.Index), database.EncodeBlock(block))
	})
}

// GetBlock returns the block stored under the specified number.
func (b *Bolt) GetBlock(num uint64) (database.Block, error) {
	var buf []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketName).Get(key(num))
		if val == nil {
			return fmt.Errorf("%w: %d", database.ErrBlockNotFound, num)
		}

		// The value is only valid for the life of the transaction.
		buf = make([]byte, len(val))
		copy(buf, val)
		return nil
	})
	if err != nil {
		return database.Block{}, err
	}

	return database.DecodeBlock(buf)
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (b *Bolt) ForEach() database.Iterator {
	return &boltIterator{storage: b}
}

// Reset drops and recreates the bucket.
func (b *Bolt) Reset() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func key(num uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, num)
	return k
}

// =============================================================================

type boltIterator struct {
	storage *Bolt
	current uint64
	eoc     bool
}

// Next retrieves the next block from the bucket.
func (bi *boltIterator) Next() (database.Block, error) {
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
func (bi *boltIterator) Done() bool {
	return bi.eoc
}
