package database_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/badger"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/bolt"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/disk"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/memory"
)

func Test_Storage(t *testing.T) {
	type table struct {
		name string
		open func(dir string) (database.Storage, error)
	}

	tt := []table{
		{name: "memory", open: func(string) (database.Storage, error) { return memory.New() }},
		{name: "disk", open: func(dir string) (database.Storage, error) { return disk.New(dir) }},
		{name: "bolt", open: func(dir string) (database.Storage, error) { return bolt.New(filepath.Join(dir, "blocks.db")) }},
		{name: "badger", open: func(dir string) (database.Storage, error) { return badger.New(dir) }},
	}

	gen := testGenesis(0)
	b1 := mine(t, database.NewGenesisBlock(gen), 0, signedTx(t, "upload", "cid:1"), signedTx(t, "review", "cid:1:5"))
	b2 := mine(t, b1, 0)
	b3 := mine(t, b2, 0, signedTx(t, "grant", "cid:1:reader"))
	chain := []database.Block{b1, b2, b3}

	t.Log("Given the need to store blocks with each storage backend.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen using %s storage.", testID, tst.name)
			{
				f := func(t *testing.T) {
					strg, err := tst.open(t.TempDir())
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to open storage: %s", failed, testID, err)
					}
					defer strg.Close()

					for _, block := range chain {
						if err := strg.Write(block); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to write block %d: %s", failed, testID, block.Header.Index, err)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould be able to write blocks.", success, testID)

					got, err := strg.GetBlock(2)
					if err != nil || got.Hash() != b2.Hash() {
						t.Fatalf("\t%s\tTest %d:\tShould be able to read block 2: %v", failed, testID, err)
					}
					if database.HashBlock(got) != b2.Hash() {
						t.Fatalf("\t%s\tTest %d:\tShould read back the same block content.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to read a block.", success, testID)

					var count int
					iter := strg.ForEach()
					for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to iterate: %s", failed, testID, err)
						}
						if block.Hash() != chain[count].Hash() {
							t.Fatalf("\t%s\tTest %d:\tShould iterate in chain order.", failed, testID)
						}
						count++
					}
					if count != len(chain) {
						t.Fatalf("\t%s\tTest %d:\tShould iterate %d blocks, got %d.", failed, testID, len(chain), count)
					}
					t.Logf("\t%s\tTest %d:\tShould iterate in chain order.", success, testID)

					if err := strg.Reset(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to reset: %s", failed, testID, err)
					}
					if _, err := strg.GetBlock(1); !errors.Is(err, database.ErrBlockNotFound) {
						t.Fatalf("\t%s\tTest %d:\tShould not find blocks after a reset: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be empty after a reset.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
