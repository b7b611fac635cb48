package forkchoice_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/forkchoice"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Choose(t *testing.T) {
	type table struct {
		name  string
		local int64
		peer  int64
		exp   forkchoice.Decision
	}

	tt := []table{
		{name: "peer heavier", local: 10, peer: 15, exp: forkchoice.AdoptPeer},
		{name: "tie", local: 10, peer: 10, exp: forkchoice.KeepLocal},
		{name: "peer lighter", local: 15, peer: 10, exp: forkchoice.KeepLocal},
		{name: "peer heavier by one", local: 0, peer: 1, exp: forkchoice.AdoptPeer},
	}

	t.Log("Given the need to choose between competing chains by work.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen the %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					got := forkchoice.Choose(big.NewInt(tst.local), big.NewInt(tst.peer))
					if got != tst.exp {
						t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.exp)
						t.Fatalf("\t%s\tTest %d:\tShould make the right decision.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould make the right decision.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_ChooseMonotonic(t *testing.T) {
	local := big.NewInt(100)
	var adopted bool

	for w := int64(90); w <= 110; w++ {
		decision := forkchoice.Choose(local, big.NewInt(w))
		if adopted && decision == forkchoice.KeepLocal {
			t.Fatalf("\t%s\tShould keep adopting as the peer work grows, failed at %d.", failed, w)
		}
		adopted = decision == forkchoice.AdoptPeer
	}
	t.Logf("\t%s\tShould keep adopting as the peer work grows.", success)
}

func Test_Diff(t *testing.T) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("Should be able to load the key: %s", err)
	}

	sign := func(data string) database.SignedTx {
		tx, err := database.NewTx(database.PublicKeyToAccountID(pk.PublicKey), "upload", []byte(data))
		if err != nil {
			t.Fatalf("Should be able to construct a transaction: %s", err)
		}
		signed, err := tx.Sign(pk)
		if err != nil {
			t.Fatalf("Should be able to sign a transaction: %s", err)
		}
		return signed
	}

	mine := func(prev database.Block, trans ...database.SignedTx) database.Block {
		block, err := database.POW(context.Background(), database.POWArgs{PrevBlock: prev, Trans: trans})
		if err != nil {
			t.Fatalf("Should be able to mine a block: %s", err)
		}
		return block
	}

	gen := genesis.Genesis{Date: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), ChainID: 1, TransPerBlock: 10}
	genesisBlock := database.NewGenesisBlock(gen)

	shared := sign("shared")
	both := sign("both")
	localOnly := sign("local")
	peerOnly := sign("peer")

	b1 := mine(genesisBlock, shared)
	local := []database.Block{genesisBlock, b1, mine(b1, both, localOnly)}

	p2 := mine(b1, peerOnly)
	candidate := []database.Block{genesisBlock, b1, p2, mine(p2, both)}

	t.Log("Given the need to compute a reorganization.")
	{
		const testID = 0

		reorg := forkchoice.Diff(local, candidate)

		if reorg.ForkPoint != 2 || len(reorg.Discarded) != 1 || len(reorg.Adopted) != 2 {
			t.Fatalf("\t%s\tTest %d:\tShould fork after block 1: %d %d %d", failed, testID, reorg.ForkPoint, len(reorg.Discarded), len(reorg.Adopted))
		}
		t.Logf("\t%s\tTest %d:\tShould fork after block 1.", success, testID)

		if len(reorg.Reinsert) != 1 || reorg.Reinsert[0].ID != localOnly.ID {
			t.Fatalf("\t%s\tTest %d:\tShould reinsert only the local-only transaction.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould reinsert only the local-only transaction.", success, testID)

		if len(reorg.Remove) != 2 || reorg.Remove[0] != peerOnly.ID || reorg.Remove[1] != both.ID {
			t.Fatalf("\t%s\tTest %d:\tShould remove the adopted transactions.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould remove the adopted transactions.", success, testID)

		if fp := forkchoice.ForkPoint(local, local[:2]); fp != 2 {
			t.Fatalf("\t%s\tTest %d:\tShould treat a prefix as fully shared, got %d.", failed, testID, fp)
		}
		t.Logf("\t%s\tTest %d:\tShould treat a prefix as fully shared.", success, testID)
	}
}
