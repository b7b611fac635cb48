package database

// ValidateBlock takes a block and validates it to be included into the
// blockchain on top of the specified tip. Checks run in a fixed order and
// the first violated rule is returned as a *ValidationError. The isConfirmed
// function reports whether a transaction id is already in the chain.
func ValidateBlock(block Block, tip Block, difficulty uint16, isConfirmed func(Hash) bool, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}
	idx := block.Header.Index

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", idx)

	if block.Header.PrevBlockHash != tip.Hash() {
		return newValidationError(ErrPrevHashMismatch, idx, "got %s, exp %s", block.Header.PrevBlockHash, tip.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", idx)

	if idx != tip.Header.Index+1 {
		return newValidationError(ErrChainDiscontinuity, idx, "got index %d, exp %d", idx, tip.Header.Index+1)
	}

	if err := checkSealed(block, difficulty, evHandler); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions are not already confirmed", idx)

	seen := make(map[Hash]struct{}, len(block.Trans))
	for _, tx := range block.Trans {
		if _, exists := seen[tx.ID]; exists {
			return newValidationError(ErrDuplicateTransaction, idx, "tx %s repeated in block", tx.ID)
		}
		seen[tx.ID] = struct{}{}

		if isConfirmed != nil && isConfirmed(tx.ID) {
			return newValidationError(ErrDuplicateTransaction, idx, "tx %s already confirmed", tx.ID)
		}
	}

	return checkTransactions(block, evHandler)
}

// IsChainValid walks an entire chain supplied by a peer starting at
// genesis. The first block must be the local genesis block, every later
// block must link to its parent, carry its true hash, meet the difficulty
// and only hold well formed transactions never seen earlier in the chain.
func IsChainValid(blocks []Block, genesisBlock Block, difficulty uint16, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	evHandler("database: IsChainValid: started: blocks[%d]", len(blocks))

	if len(blocks) == 0 {
		return newValidationError(ErrGenesisMismatch, 0, "empty chain")
	}

	first := blocks[0]
	if first.Header != genesisBlock.Header || len(first.Trans) != 0 || first.Hash() != genesisBlock.Hash() {
		return newValidationError(ErrGenesisMismatch, first.Header.Index, "got %s, exp %s", first.Hash(), genesisBlock.Hash())
	}

	confirmed := make(map[Hash]uint64)
	for i := 1; i < len(blocks); i++ {
		prev := blocks[i-1]
		block := blocks[i]
		idx := block.Header.Index

		if block.Header.PrevBlockHash != prev.Hash() {
			return newValidationError(ErrChainDiscontinuity, idx, "links to %s, parent is %s", block.Header.PrevBlockHash, prev.Hash())
		}

		if idx != uint64(i) {
			return newValidationError(ErrChainDiscontinuity, idx, "found at position %d", i)
		}

		if err := checkSealed(block, difficulty, evHandler); err != nil {
			return err
		}

		for _, tx := range block.Trans {
			if at, exists := confirmed[tx.ID]; exists {
				return newValidationError(ErrDuplicateTransaction, idx, "tx %s already in block %d", tx.ID, at)
			}
			confirmed[tx.ID] = idx
		}

		if err := checkTransactions(block, evHandler); err != nil {
			return err
		}
	}

	evHandler("database: IsChainValid: completed: blocks[%d]", len(blocks))

	return nil
}

// =============================================================================

// checkSealed verifies the claimed hash is the true hash and that it solves
// the proof of work.
func checkSealed(block Block, difficulty uint16, evHandler func(v string, args ...any)) error {
	idx := block.Header.Index

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches content", idx)

	if hash := HashBlock(block); hash != block.Hash() {
		return newValidationError(ErrHashMismatch, idx, "claimed %s, computed %s", block.Hash(), hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", idx)

	if !MeetsDifficulty(block.Hash(), difficulty) {
		return newValidationError(ErrDifficultyNotMet, idx, "%s needs %d leading zero bits", block.Hash(), difficulty)
	}

	return nil
}

// checkTransactions verifies each transaction is well formed.
func checkTransactions(block Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions are well formed", block.Header.Index)

	for _, tx := range block.Trans {
		if err := tx.Validate(); err != nil {
			return newValidationError(ErrMalformedTransaction, block.Header.Index, "tx %s: %s", tx.ID, err)
		}
	}

	return nil
}
