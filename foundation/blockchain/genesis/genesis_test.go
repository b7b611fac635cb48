package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Load(t *testing.T) {
	type table struct {
		name    string
		file    string
		content string
		diff    uint16
		perBlk  uint16
	}

	tt := []table{
		{
			name:    "json",
			file:    "genesis.json",
			content: `{"date":"2024-01-01T00:00:00Z","chain_id":1,"trans_per_block":10,"difficulty":2}`,
			diff:    2,
			perBlk:  10,
		},
		{
			name:    "toml",
			file:    "genesis.toml",
			content: "date = 2024-01-01T00:00:00Z\nchain_id = 7\ntrans_per_block = 4\ndifficulty = 12\n",
			diff:    12,
			perBlk:  4,
		},
	}

	t.Log("Given the need to load genesis files.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s file.", testID, tst.name)
			{
				f := func(t *testing.T) {
					path := filepath.Join(t.TempDir(), tst.file)
					if err := os.WriteFile(path, []byte(tst.content), 0600); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to write the file: %v", failed, testID, err)
					}

					gen, err := genesis.Load(path)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to load the genesis: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to load the genesis.", success, testID)

					if gen.Difficulty != tst.diff || gen.TransPerBlock != tst.perBlk {
						t.Logf("\t%s\tTest %d:\tgot: %d/%d", failed, testID, gen.Difficulty, gen.TransPerBlock)
						t.Logf("\t%s\tTest %d:\texp: %d/%d", failed, testID, tst.diff, tst.perBlk)
						t.Fatalf("\t%s\tTest %d:\tShould get back the right values.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right values.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(`{"date":"2024-01-01T00:00:00Z","trans_per_block":0}`), 0600); err != nil {
		t.Fatalf("Should be able to write the file: %v", err)
	}

	if _, err := genesis.Load(path); err == nil {
		t.Fatalf("Should reject a genesis with zero trans_per_block.")
	}
}
