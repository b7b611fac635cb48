package database

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/codec"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
)

// maxBlockTrans bounds the transaction count a decoder will accept.
const maxBlockTrans = 1 << 16

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Index         uint64 `json:"index"`           // Height of the block in the chain, genesis is 0.
	PrevBlockHash Hash   `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64 `json:"timestamp"`       // Unix seconds when the block was mined.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
}

// Block represents a group of transactions batched together. A block is a
// value: once its hash is fixed by mining or decoding nothing changes it.
type Block struct {
	Header BlockHeader
	Trans  []SignedTx
	hash   Hash
}

// NewGenesisBlock constructs the canonical genesis block for the chain. The
// chain id is used as the nonce so chains with different ids never share a
// genesis.
func NewGenesisBlock(gen genesis.Genesis) Block {
	b := Block{
		Header: BlockHeader{
			Index:         0,
			PrevBlockHash: ZeroHash,
			TimeStamp:     uint64(gen.Date.UTC().Unix()),
			Nonce:         uint64(gen.ChainID),
		},
	}
	b.hash = HashBlock(b)

	return b
}

// Hash returns the hash fixed for this block. For a block received from a
// peer this is the claimed hash, which validation compares to HashBlock.
func (b Block) Hash() Hash {
	return b.hash
}

// TxIDs returns the ids of the transactions in block order.
func (b Block) TxIDs() []Hash {
	ids := make([]Hash, len(b.Trans))
	for i, tx := range b.Trans {
		ids[i] = tx.ID
	}
	return ids
}

// HashBlock computes the hash of the block from its content.
func HashBlock(b Block) Hash {
	w := codec.NewWriter(256)
	encodeBlockPrefix(w, b)
	w.Uint64(b.Header.Nonce)
	return sha256.Sum256(w.Encoded())
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Difficulty uint16
	PrevBlock  Block
	Trans      []SignedTx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The search starts at nonce 0 and
// stops with the context error if the context is cancelled.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	nb := Block{
		Header: BlockHeader{
			Index:         args.PrevBlock.Header.Index + 1,
			PrevBlockHash: args.PrevBlock.Hash(),
			TimeStamp:     uint64(time.Now().UTC().Unix()),
		},
		Trans: args.Trans,
	}

	ev("database: POW: MINING: started: blk[%d]: numTrans[%d]", nb.Header.Index, len(nb.Trans))
	defer ev("database: POW: MINING: completed: blk[%d]", nb.Header.Index)

	for _, tx := range nb.Trans {
		ev("database: POW: MINING: tx[%s]", tx)
	}

	// The nonce is the last field in the encoding so the prefix is only
	// built once and each attempt appends the next nonce to it.
	w := codec.NewWriter(256)
	encodeBlockPrefix(w, nb)
	prefix := w.Encoded()
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	tail := buf[len(prefix):]

	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: POW: MINING: attempts[%d]", attempts)
		}

		// Did another node find the solution first.
		if ctx.Err() != nil {
			ev("database: POW: MINING: CANCELLED: attempts[%d]", attempts)
			return Block{}, ctx.Err()
		}

		binary.BigEndian.PutUint64(tail, nonce)
		hash := Hash(sha256.Sum256(buf))
		if !MeetsDifficulty(hash, args.Difficulty) {
			continue
		}

		nb.Header.Nonce = nonce
		nb.hash = hash

		ev("database: POW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", nb.Header.PrevBlockHash, hash, attempts)

		return nb, nil
	}
}

// MeetsDifficulty reports whether the hash has at least difficulty leading
// zero bits, which is the same as its value being below 2^(256-difficulty).
func MeetsDifficulty(hash Hash, difficulty uint16) bool {
	var zeros int
	for _, b := range hash {
		if b != 0 {
			zeros += bits.LeadingZeros8(b)
			break
		}
		zeros += 8
	}

	return zeros >= int(difficulty)
}

// Work returns the expected number of hashes needed to mine one block at
// the specified difficulty.
func Work(difficulty uint16) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}

// CumulativeWork sums the work of every block after genesis.
func CumulativeWork(blocks []Block, difficulty uint16) *big.Int {
	total := new(big.Int)
	for _, b := range blocks {
		if b.Header.Index == 0 {
			continue
		}
		total.Add(total, Work(difficulty))
	}

	return total
}

// =============================================================================

// BlockData represents what is written to disk and returned by the
// API. The hash is the one fixed for the block.
type BlockData struct {
	Hash   Hash        `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans,
	}
}

// ToBlock converts block data into a block keeping the claimed hash.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: blockData.Header,
		Trans:  blockData.Trans,
		hash:   blockData.Hash,
	}
}

// =============================================================================

// EncodeBlock returns the canonical encoding of the block followed by its
// hash. This is the form used on the wire and by the key value stores.
func EncodeBlock(b Block) []byte {
	w := codec.NewWriter(256)
	encodeBlockPrefix(w, b)
	w.Uint64(b.Header.Nonce)
	w.Fixed32(b.hash)
	return w.Encoded()
}

// DecodeBlock decodes a block produced by EncodeBlock. The trailing hash
// is kept as the claimed hash.
func DecodeBlock(data []byte) (Block, error) {
	r := codec.NewReader(data)

	var b Block
	r.Version()
	b.Header.Index = r.Uint64()
	b.Header.PrevBlockHash = r.Fixed32()
	b.Header.TimeStamp = r.Uint64()

	n := r.Uint32()
	if n > maxBlockTrans {
		return Block{}, fmt.Errorf("decoding block: %d transactions exceeds %d", n, maxBlockTrans)
	}

	if n > 0 {
		b.Trans = make([]SignedTx, 0, n)
		for i := uint32(0); i < n && r.Err() == nil; i++ {
			b.Trans = append(b.Trans, decodeTx(r))
		}
	}

	b.Header.Nonce = r.Uint64()
	b.hash = r.Fixed32()

	if err := r.Done(); err != nil {
		return Block{}, fmt.Errorf("decoding block: %w", err)
	}

	return b, nil
}

// encodeBlockPrefix writes every hashed field of the block except the nonce.
func encodeBlockPrefix(w *codec.Writer, b Block) {
	w.Uint8(codec.Version)
	w.Uint64(b.Header.Index)
	w.Fixed32(b.Header.PrevBlockHash)
	w.Uint64(b.Header.TimeStamp)
	w.Uint32(uint32(len(b.Trans)))
	for _, tx := range b.Trans {
		encodeTx(w, tx)
	}
}
