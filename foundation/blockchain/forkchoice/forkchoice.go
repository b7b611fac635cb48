// Package forkchoice decides between the local chain and a competing chain
// from a peer and computes what changes when the local chain is replaced.
package forkchoice

import (
	"math/big"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// Decision is the outcome of comparing two chains.
type Decision int

// Set of possible decisions.
const (
	KeepLocal Decision = iota
	AdoptPeer
)

// String implements the fmt.Stringer interface.
func (d Decision) String() string {
	if d == AdoptPeer {
		return "adopt-peer"
	}
	return "keep-local"
}

// Choose compares the cumulative work of both chains. The peer chain is
// adopted only when it carries strictly more work.
func Choose(localWork *big.Int, peerWork *big.Int) Decision {
	if peerWork.Cmp(localWork) > 0 {
		return AdoptPeer
	}
	return KeepLocal
}

// ForkPoint returns the number of leading blocks both chains share.
func ForkPoint(a []database.Block, b []database.Block) int {
	n := min(len(a), len(b))

	for i := 0; i < n; i++ {
		if a[i].Hash() != b[i].Hash() {
			return i
		}
	}

	return n
}

// =============================================================================

// Reorg describes the replacement of the local chain by a candidate chain.
type Reorg struct {
	ForkPoint int                 // Number of shared leading blocks.
	Discarded []database.Block    // Local blocks after the fork point.
	Adopted   []database.Block    // Candidate blocks after the fork point.
	Reinsert  []database.SignedTx // Transactions only confirmed in Discarded.
	Remove    []database.Hash     // Transactions confirmed in Adopted.
}

// Diff computes the reorganization from the local chain to the candidate.
// Reinsert keeps the chain order of the discarded blocks.
func Diff(local []database.Block, candidate []database.Block) Reorg {
	fp := ForkPoint(local, candidate)

	reorg := Reorg{
		ForkPoint: fp,
		Discarded: local[fp:],
		Adopted:   candidate[fp:],
	}

	adopted := make(map[database.Hash]struct{})
	for _, block := range reorg.Adopted {
		for _, tx := range block.Trans {
			adopted[tx.ID] = struct{}{}
			reorg.Remove = append(reorg.Remove, tx.ID)
		}
	}

	for _, block := range reorg.Discarded {
		for _, tx := range block.Trans {
			if _, exists := adopted[tx.ID]; !exists {
				reorg.Reinsert = append(reorg.Reinsert, tx)
			}
		}
	}

	return reorg
}
