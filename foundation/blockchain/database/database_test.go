package database_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/database/storage/memory"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// =============================================================================

func testGenesis(difficulty uint16) genesis.Genesis {
	return genesis.Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    difficulty,
	}
}

func privateKey(t *testing.T) *ecdsa.PrivateKey {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}
	return pk
}

func signedTx(t *testing.T, kind string, data string) database.SignedTx {
	pk := privateKey(t)

	tx, err := database.NewTx(database.PublicKeyToAccountID(pk.PublicKey), kind, []byte(data))
	if err != nil {
		t.Fatalf("Should be able to construct a transaction: %s", err)
	}

	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign a transaction: %s", err)
	}

	return signed
}

func mine(t *testing.T, prev database.Block, difficulty uint16, trans ...database.SignedTx) database.Block {
	block, err := database.POW(context.Background(), database.POWArgs{
		Difficulty: difficulty,
		PrevBlock:  prev,
		Trans:      trans,
	})
	if err != nil {
		t.Fatalf("Should be able to mine a block: %s", err)
	}
	return block
}

// =============================================================================

func Test_MineBlock(t *testing.T) {
	t.Log("Given the need to mine a block on top of genesis with difficulty 2.")
	{
		const testID = 0
		gen := testGenesis(2)
		genesisBlock := database.NewGenesisBlock(gen)

		block := mine(t, genesisBlock, gen.Difficulty, signedTx(t, "upload", "cid:1"))
		t.Logf("\t%s\tTest %d:\tShould be able to mine block 1.", success, testID)

		if block.Header.Index != 1 || block.Header.PrevBlockHash != genesisBlock.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould link block 1 to genesis: %+v", failed, testID, block.Header)
		}
		t.Logf("\t%s\tTest %d:\tShould link block 1 to genesis.", success, testID)

		if block.Hash()[0]&0xC0 != 0 {
			t.Fatalf("\t%s\tTest %d:\tShould have the first 2 bits of the hash zero: %s", failed, testID, block.Hash())
		}
		t.Logf("\t%s\tTest %d:\tShould have the first 2 bits of the hash zero.", success, testID)

		if err := database.ValidateBlock(block, genesisBlock, gen.Difficulty, nil, nil); err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould validate block 1 against genesis: %s", failed, testID, err)
		}
		t.Logf("\t%s\tTest %d:\tShould validate block 1 against genesis.", success, testID)
	}
}

func Test_MineCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := database.POW(ctx, database.POWArgs{
		Difficulty: 255,
		PrevBlock:  database.NewGenesisBlock(testGenesis(255)),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Should stop mining with the context error, got %v", err)
	}
}

func Test_HashDeterminism(t *testing.T) {
	t.Log("Given the need to hash blocks deterministically.")
	{
		const testID = 0
		gen := testGenesis(0)
		block := mine(t, database.NewGenesisBlock(gen), 0, signedTx(t, "review", "score:5"))

		if database.HashBlock(block) != block.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould recompute the same hash.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould recompute the same hash.", success, testID)

		decoded, err := database.DecodeBlock(database.EncodeBlock(block))
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould decode the canonical encoding: %s", failed, testID, err)
		}
		if decoded.Hash() != block.Hash() || database.HashBlock(decoded) != block.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould keep the hash across encoding.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould keep the hash across encoding.", success, testID)

		bd := database.NewBlockData(block)
		bd.Trans = append([]database.SignedTx{}, bd.Trans...)
		bd.Trans[0].Data = []byte("score:4")
		if database.HashBlock(database.ToBlock(bd)) == block.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould change the hash when a transaction byte changes.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould change the hash when a transaction byte changes.", success, testID)

		bd = database.NewBlockData(block)
		bd.Header.Nonce++
		if database.HashBlock(database.ToBlock(bd)) == block.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould change the hash when the nonce changes.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould change the hash when the nonce changes.", success, testID)
	}
}

func Test_MeetsDifficulty(t *testing.T) {
	var h database.Hash
	h[0] = 0x00
	h[1] = 0x1F

	if !database.MeetsDifficulty(h, 11) {
		t.Fatalf("Should accept 11 leading zero bits.")
	}
	if database.MeetsDifficulty(h, 12) {
		t.Fatalf("Should reject 12 leading zero bits.")
	}
	if !database.MeetsDifficulty(database.ZeroHash, 255) {
		t.Fatalf("Should accept the zero hash at any difficulty.")
	}
	if database.Work(4).Int64() != 16 {
		t.Fatalf("Should get 2^d work per block.")
	}
}

func Test_ValidateTx(t *testing.T) {
	type table struct {
		name string
		kind string
		err  error
	}

	tt := []table{
		{name: "ascii", kind: strings.Repeat("a", database.MaxTxKind), err: nil},
		{name: "multibyte", kind: strings.Repeat("\u00e9", 32), err: nil},
		{name: "too-long", kind: strings.Repeat("\u00e9", 40), err: database.ErrMalformedTransaction},
		{name: "invalid-utf8", kind: "up\xffload", err: database.ErrMalformedTransaction},
	}

	t.Log("Given the need to validate the kind of a signed transaction.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen the kind is %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					tx := signedTx(t, tst.kind, "cid:kind")

					err := tx.Validate()
					switch {
					case tst.err == nil && err != nil:
						t.Fatalf("\t%s\tTest %d:\tShould accept the transaction : %s", failed, testID, err)
					case tst.err != nil && !errors.Is(err, tst.err):
						t.Fatalf("\t%s\tTest %d:\tShould reject the transaction with %v : got %v", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould report %v.", success, testID, tst.err)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_ValidateBlock(t *testing.T) {
	gen := testGenesis(0)
	genesisBlock := database.NewGenesisBlock(gen)

	dup := signedTx(t, "grant", "reader")
	good := mine(t, genesisBlock, 0, dup)

	bad := signedTx(t, "transfer", "10")
	bad.Sig[10] ^= 0xFF
	malformed := mine(t, genesisBlock, 0, bad)

	tampered := database.NewBlockData(good)
	tampered.Header.TimeStamp++

	other := mine(t, good, 0)

	type table struct {
		name        string
		block       database.Block
		difficulty  uint16
		isConfirmed func(database.Hash) bool
		rule        error
	}

	tt := []table{
		{name: "valid", block: good},
		{name: "prevhash", block: mine(t, good, 0, signedTx(t, "upload", "x")), rule: database.ErrPrevHashMismatch},
		{name: "hash", block: database.ToBlock(tampered), rule: database.ErrHashMismatch},
		{name: "difficulty", block: good, difficulty: 255, rule: database.ErrDifficultyNotMet},
		{name: "confirmed", block: good, isConfirmed: func(h database.Hash) bool { return h == dup.ID }, rule: database.ErrDuplicateTransaction},
		{name: "repeated", block: mine(t, genesisBlock, 0, dup, dup), rule: database.ErrDuplicateTransaction},
		{name: "malformed", block: malformed, rule: database.ErrMalformedTransaction},
		{name: "index", block: database.ToBlock(reindex(other, genesisBlock)), rule: database.ErrChainDiscontinuity},
	}

	t.Log("Given the need to validate blocks against the tip.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s block.", testID, tst.name)
			{
				f := func(t *testing.T) {
					err := database.ValidateBlock(tst.block, genesisBlock, tst.difficulty, tst.isConfirmed, nil)
					if tst.rule == nil {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept the block: %s", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould accept the block.", success, testID)
						return
					}

					if !errors.Is(err, tst.rule) {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, err)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.rule)
						t.Fatalf("\t%s\tTest %d:\tShould reject the block with the right rule.", failed, testID)
					}

					var ve *database.ValidationError
					if !errors.As(err, &ve) {
						t.Fatalf("\t%s\tTest %d:\tShould get back a validation error.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the block with the right rule.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

// reindex returns a block that links to genesis but claims the index of
// its original position.
func reindex(block database.Block, parent database.Block) database.BlockData {
	bd := database.NewBlockData(block)
	bd.Header.PrevBlockHash = parent.Hash()
	bd.Hash = database.HashBlock(database.ToBlock(bd))
	return bd
}

func Test_IsChainValid(t *testing.T) {
	gen := testGenesis(1)
	genesisBlock := database.NewGenesisBlock(gen)

	b1 := mine(t, genesisBlock, 1, signedTx(t, "upload", "a"))
	b2 := mine(t, b1, 1, signedTx(t, "upload", "b"))
	b3 := mine(t, b2, 1)

	otherGenesis := database.NewGenesisBlock(testGenesis(2))
	unlinked := mine(t, genesisBlock, 1)
	repeat := mine(t, b2, 1, b1.Trans[0])

	type table struct {
		name  string
		chain []database.Block
		rule  error
	}

	tt := []table{
		{name: "valid", chain: []database.Block{genesisBlock, b1, b2, b3}},
		{name: "genesis", chain: []database.Block{otherGenesis, b1}, rule: database.ErrGenesisMismatch},
		{name: "empty", chain: nil, rule: database.ErrGenesisMismatch},
		{name: "link", chain: []database.Block{genesisBlock, b1, unlinked}, rule: database.ErrChainDiscontinuity},
		{name: "duplicate", chain: []database.Block{genesisBlock, b1, b2, repeat}, rule: database.ErrDuplicateTransaction},
	}

	t.Log("Given the need to validate a chain supplied by a peer.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s chain.", testID, tst.name)
			{
				f := func(t *testing.T) {
					err := database.IsChainValid(tst.chain, genesisBlock, gen.Difficulty, nil)
					if tst.rule == nil {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept the chain: %s", failed, testID, err)
						}

						for i := 1; i < len(tst.chain); i++ {
							if tst.chain[i].Header.PrevBlockHash != tst.chain[i-1].Hash() || !database.MeetsDifficulty(tst.chain[i].Hash(), gen.Difficulty) {
								t.Fatalf("\t%s\tTest %d:\tShould only accept linked blocks that meet the difficulty.", failed, testID)
							}
						}
						t.Logf("\t%s\tTest %d:\tShould accept the chain.", success, testID)
						return
					}

					if !errors.Is(err, tst.rule) {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, err)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.rule)
						t.Fatalf("\t%s\tTest %d:\tShould reject the chain with the right rule.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the chain with the right rule.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Database(t *testing.T) {
	t.Log("Given the need to maintain the chain in the database.")
	{
		const testID = 0
		gen := testGenesis(0)

		strg, err := memory.New()
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %s", failed, testID, err)
		}

		db, err := database.New(gen, strg, nil)
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %s", failed, testID, err)
		}
		t.Logf("\t%s\tTest %d:\tShould be able to open the database.", success, testID)

		tx := signedTx(t, "upload", "cid:db")
		b1 := mine(t, db.LatestBlock(), 0, tx)
		if err := db.Write(b1); err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to write block 1: %s", failed, testID, err)
		}

		if idx, ok := db.ConfirmedIn(tx.ID); !ok || idx != 1 {
			t.Fatalf("\t%s\tTest %d:\tShould index the transaction in block 1.", failed, testID)
		}
		if db.CumulativeWork().Int64() != 1 {
			t.Fatalf("\t%s\tTest %d:\tShould have work 1, got %s.", failed, testID, db.CumulativeWork())
		}
		t.Logf("\t%s\tTest %d:\tShould index the written block.", success, testID)

		if err := db.Write(b1); !errors.Is(err, database.ErrChainDiscontinuity) {
			t.Fatalf("\t%s\tTest %d:\tShould refuse to write a block out of order: %v", failed, testID, err)
		}
		t.Logf("\t%s\tTest %d:\tShould refuse to write a block out of order.", success, testID)

		reloaded, err := database.New(gen, strg, nil)
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to reload the database: %s", failed, testID, err)
		}
		if reloaded.LatestBlock().Hash() != b1.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould reload the stored chain.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould reload the stored chain.", success, testID)

		alt1 := mine(t, db.GenesisBlock(), 0)
		alt2 := mine(t, alt1, 0)
		if err := db.Replace([]database.Block{db.GenesisBlock(), alt1, alt2}); err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to replace the chain: %s", failed, testID, err)
		}
		if db.IsConfirmed(tx.ID) || db.LatestBlock().Hash() != alt2.Hash() || db.CumulativeWork().Int64() != 2 {
			t.Fatalf("\t%s\tTest %d:\tShould rebuild the index after a replace.", failed, testID)
		}
		stored, err := strg.GetBlock(2)
		if err != nil || stored.Hash() != alt2.Hash() {
			t.Fatalf("\t%s\tTest %d:\tShould rewrite storage after a replace: %v", failed, testID, err)
		}
		t.Logf("\t%s\tTest %d:\tShould be able to replace the chain.", success, testID)
	}
}
