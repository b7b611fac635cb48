package state

import (
	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// QueryLastest represents to query the latest block in the chain.
const QueryLastest = ^uint64(0) >> 1

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers.
// Numbers past the tip are left out.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	latest := s.db.LatestBlock().Header.Index

	if from == QueryLastest {
		from = latest
		to = from
	}
	if to == QueryLastest || to > latest {
		to = latest
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlocksFrom returns every block from the specified number to the tip.
func (s *State) QueryBlocksFrom(from uint64) []database.Block {
	return s.db.BlocksFrom(from)
}

// QueryTransaction reports the number of the block holding the transaction.
func (s *State) QueryTransaction(id database.Hash) (uint64, bool) {
	return s.db.ConfirmedIn(id)
}
