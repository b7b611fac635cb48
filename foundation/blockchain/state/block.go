package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	// The tip is read before the transactions are picked. A block appended
	// in between removes its transactions from the mempool and makes this
	// block stale instead of a duplicate.
	tip := s.db.LatestBlock()

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Pick the best transactions from the mempool.
	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		Difficulty: s.genesis.Difficulty,
		PrevBlock:  tip,
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// Validate the block and then update the blockchain database.
	if err := s.appendBlock(block); err != nil {
		var ve *database.ValidationError
		switch {
		case errors.Is(err, database.ErrPrevHashMismatch):
			return database.Block{}, fmt.Errorf("%w: %w", ErrStaleBlock, err)
		case errors.As(err, &ve):
			return database.Block{}, fmt.Errorf("%w: %w", ErrInvariantViolation, err)
		}
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. The new tip is
// returned.
func (s *State) ProcessProposedBlock(block database.Block) (database.Block, error) {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Trans))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", block.Hash())

	// Validate the block and then update the blockchain database.
	if err := s.appendBlock(block); err != nil {
		return database.Block{}, err
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	return s.db.LatestBlock(), nil
}

// =============================================================================

// appendBlock takes the block and validates the block against the consensus
// rules. If the block passes, the block is written to storage and its
// transactions are removed from the mempool as one step.
func (s *State) appendBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: appendBlock: validate block")

	tip := s.db.LatestBlock()
	if err := database.ValidateBlock(block, tip, s.genesis.Difficulty, s.db.IsConfirmed, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: appendBlock: write to disk and remove from mempool")

	// Write the new block to the chain and remove its transactions while
	// the mempool is locked.
	commit := func() error {
		return s.db.Write(block)
	}
	if err := s.mempool.Purge(block.Trans, commit); err != nil {
		return err
	}

	s.confirm(block)

	return nil
}

// confirm sends the notifications for a block that joined the chain.
func (s *State) confirm(block database.Block) {
	s.confirmed.Send(Confirmed{
		BlockIndex: block.Header.Index,
		BlockHash:  block.Hash(),
		TxIDs:      block.TxIDs(),
	})

	s.blockEvent(block)
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Trans)
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}
