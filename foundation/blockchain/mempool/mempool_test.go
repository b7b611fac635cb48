package mempool_test

import (
	"errors"
	"testing"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/mempool"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sign(t *testing.T, kind string, data string) database.SignedTx {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the key: %s", failed, err)
	}

	tx, err := database.NewTx(database.PublicKeyToAccountID(pk.PublicKey), kind, []byte(data))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %s", failed, err)
	}

	return signedTx
}

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		const testID = 0

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to construct a mempool: %s", failed, testID, err)
		}

		txs := []database.SignedTx{
			sign(t, "upload", "cid:1"),
			sign(t, "grant", "cid:1:reader"),
			sign(t, "review", "cid:1:5"),
			sign(t, "transfer", "10"),
		}

		for i, tx := range txs {
			n, err := mp.Submit(tx, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to add new transaction: %s", failed, testID, err)
			}
			if n != i+1 {
				t.Fatalf("\t%s\tTest %d:\tShould report pool size %d, got %d.", failed, testID, i+1, n)
			}
		}
		t.Logf("\t%s\tTest %d:\tShould be able to add new transactions.", success, testID)

		for i, tx := range mp.Copy() {
			if tx.ID != txs[i].ID {
				t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, tx.Kind)
				t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, txs[i].Kind)
				t.Fatalf("\t%s\tTest %d:\tShould get back transactions in submission order.", failed, testID)
			}
		}
		t.Logf("\t%s\tTest %d:\tShould get back transactions in submission order.", success, testID)

		best := mp.PickBest(2)
		if len(best) != 2 || best[0].ID != txs[0].ID || best[1].ID != txs[1].ID {
			t.Fatalf("\t%s\tTest %d:\tShould pick the oldest transactions first.", failed, testID)
		}
		if mp.Count() != 4 {
			t.Fatalf("\t%s\tTest %d:\tShould leave picked transactions in the pool.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould pick the oldest transactions first.", success, testID)

		mp.Delete(txs[1].ID)
		if mp.Count() != 3 || mp.Contains(txs[1].ID) {
			t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

		mp.Truncate()
		if mp.Count() != 0 {
			t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
	}
}

func TestSubmitRejects(t *testing.T) {
	pending := sign(t, "upload", "cid:pending")
	confirmed := sign(t, "upload", "cid:confirmed")

	malformed := sign(t, "upload", "cid:bad")
	malformed.Data = []byte("cid:changed")

	type table struct {
		name string
		tx   database.SignedTx
		rule error
	}

	tt := []table{
		{name: "pending", tx: pending, rule: database.ErrDuplicateTransaction},
		{name: "confirmed", tx: confirmed, rule: database.ErrDuplicateTransaction},
		{name: "malformed", tx: malformed, rule: database.ErrMalformedTransaction},
	}

	isConfirmed := func(id database.Hash) bool { return id == confirmed.ID }

	t.Log("Given the need to reject transactions the pool can't accept.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen submitting a %s transaction.", testID, tst.name)
			{
				f := func(t *testing.T) {
					mp, err := mempool.New()
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct a mempool: %s", failed, testID, err)
					}

					if _, err := mp.Submit(pending, isConfirmed); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to add the pending transaction: %s", failed, testID, err)
					}

					if _, err := mp.Submit(tst.tx, isConfirmed); !errors.Is(err, tst.rule) {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, err)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.rule)
						t.Fatalf("\t%s\tTest %d:\tShould reject the transaction with the right rule.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the transaction with the right rule.", success, testID)

					if mp.Count() != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould leave the pool size unchanged, got %d.", failed, testID, mp.Count())
					}
					t.Logf("\t%s\tTest %d:\tShould leave the pool size unchanged.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestPurge(t *testing.T) {
	t.Log("Given the need to remove transactions only when a block commits.")
	{
		const testID = 0

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to construct a mempool: %s", failed, testID, err)
		}

		tx1 := sign(t, "upload", "cid:1")
		tx2 := sign(t, "upload", "cid:2")
		mp.Submit(tx1, nil)
		mp.Submit(tx2, nil)

		commitErr := errors.New("disk full")
		err = mp.Purge([]database.SignedTx{tx1}, func() error { return commitErr })
		if !errors.Is(err, commitErr) {
			t.Fatalf("\t%s\tTest %d:\tShould return the commit error: %v", failed, testID, err)
		}
		if mp.Count() != 2 {
			t.Fatalf("\t%s\tTest %d:\tShould keep the transactions on a failed commit.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould keep the transactions on a failed commit.", success, testID)

		var committed bool
		err = mp.Purge([]database.SignedTx{tx1}, func() error { committed = true; return nil })
		if err != nil || !committed {
			t.Fatalf("\t%s\tTest %d:\tShould run the commit: %v", failed, testID, err)
		}
		if mp.Contains(tx1.ID) || !mp.Contains(tx2.ID) {
			t.Fatalf("\t%s\tTest %d:\tShould remove only the committed transactions.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould remove only the committed transactions.", success, testID)
	}
}

func TestReconcile(t *testing.T) {
	t.Log("Given the need to update the pool after a reorganization.")
	{
		const testID = 0

		mp, err := mempool.NewWithStrategy("fair")
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to construct a mempool: %s", failed, testID, err)
		}

		pooled := sign(t, "upload", "cid:pooled")
		adopted := sign(t, "upload", "cid:adopted")
		orphaned := sign(t, "upload", "cid:orphaned")
		mp.Submit(pooled, nil)
		mp.Submit(adopted, nil)

		err = mp.Reconcile([]database.SignedTx{orphaned, pooled}, []database.Hash{adopted.ID}, func() error { return nil })
		if err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to reconcile: %s", failed, testID, err)
		}

		txs := mp.Copy()
		if len(txs) != 2 || txs[0].ID != pooled.ID || txs[1].ID != orphaned.ID {
			t.Fatalf("\t%s\tTest %d:\tShould hold the pooled and orphaned transactions, got %d.", failed, testID, len(txs))
		}
		t.Logf("\t%s\tTest %d:\tShould reinsert orphaned and remove adopted transactions.", success, testID)
	}
}
