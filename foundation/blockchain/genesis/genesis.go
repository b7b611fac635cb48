// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Genesis represents the genesis file. These values are fixed for the life
// of a chain and every node on the network must load the same ones.
type Genesis struct {
	Date          time.Time `json:"date" toml:"date"`
	ChainID       uint16    `json:"chain_id" toml:"chain_id"`               // The chain id represents an unique id for this running instance.
	TransPerBlock uint16    `json:"trans_per_block" toml:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16    `json:"difficulty" toml:"difficulty"`           // Number of leading zero bits a block hash must have.
}

// Default returns the genesis used when no file is configured.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    16,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Files ending in .toml are read
// as TOML, everything else as JSON.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(content), &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding toml genesis: %w", err)
		}

	default:
		if err := json.Unmarshal(content, &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding json genesis: %w", err)
		}
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the values are usable by a node.
func (g Genesis) Validate() error {
	if g.Date.IsZero() {
		return errors.New("genesis date is required")
	}

	if g.TransPerBlock == 0 {
		return errors.New("genesis trans_per_block must be greater than zero")
	}

	if g.Difficulty > 255 {
		return fmt.Errorf("genesis difficulty %d is larger than the hash size", g.Difficulty)
	}

	return nil
}
