package state

import (
	"fmt"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/forkchoice"
)

// ResolveFork compares the candidate chain, which must start with genesis,
// against the local chain and replaces the local chain when the candidate
// carries strictly more work and passes validation. Transactions confirmed
// only in the discarded blocks go back into the mempool and transactions
// confirmed in the adopted blocks leave it.
func (s *State) ResolveFork(candidate []database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: ResolveFork: started: blocks[%d]", len(candidate))
	defer s.evHandler("state: ResolveFork: completed")

	localWork := s.db.CumulativeWork()
	peerWork := database.CumulativeWork(candidate, s.genesis.Difficulty)

	if forkchoice.Choose(localWork, peerWork) == forkchoice.KeepLocal {
		return fmt.Errorf("%w: local[%s] peer[%s]", ErrForkNotHeavier, localWork, peerWork)
	}

	s.evHandler("state: ResolveFork: validate candidate: local[%s] peer[%s]", localWork, peerWork)

	if err := database.IsChainValid(candidate, s.db.GenesisBlock(), s.genesis.Difficulty, s.evHandler); err != nil {
		return err
	}

	reorg := forkchoice.Diff(s.db.Blocks(), candidate)

	s.evHandler("state: ResolveFork: replace chain: forkPoint[%d]: discarded[%d]: adopted[%d]: reinsert[%d]", reorg.ForkPoint, len(reorg.Discarded), len(reorg.Adopted), len(reorg.Reinsert))

	// Replace the chain and update the mempool while the mempool is locked.
	commit := func() error {
		return s.db.Replace(candidate)
	}
	if err := s.mempool.Reconcile(reorg.Reinsert, reorg.Remove, commit); err != nil {
		return err
	}

	// Any block being mined is now built on the wrong parent.
	done := s.Worker.SignalCancelMining()
	done()

	for _, block := range reorg.Adopted {
		s.confirm(block)
	}

	if s.mempool.Count() > 0 {
		s.Worker.SignalStartMining()
	}

	return nil
}
