package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/badger"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/bolt"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/disk"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var (
	storageKind string
	dbPath      string
	genesisPath string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate a stored chain against the genesis",
	Run:   verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&storageKind, "storage", "s", "disk", "Storage backend: disk, bolt or badger.")
	verifyCmd.Flags().StringVarP(&dbPath, "dbpath", "b", "zblock/miner1/", "Path to the stored blocks.")
	verifyCmd.Flags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
}

func verifyRun(cmd *cobra.Command, args []string) {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		log.Fatal(err)
	}

	var strg database.Storage
	switch storageKind {
	case "disk":
		strg, err = disk.New(dbPath)
	case "bolt":
		strg, err = bolt.New(filepath.Join(dbPath, "blocks.db"))
	case "badger":
		strg, err = badger.New(dbPath)
	default:
		log.Fatalf("unknown storage %q", storageKind)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Loading the database walks every stored block and validates the
	// chain from the genesis.
	ev := func(v string, args ...any) {}
	db, err := database.New(gen, strg, ev)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	latest := db.LatestBlock()
	fmt.Printf("chain valid: height[%d] tip[%s] work[%s]\n", latest.Header.Index, latest.Hash(), db.CumulativeWork())
}
