package database

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/contentledger/blockchain/foundation/blockchain/codec"
	"github.com/contentledger/blockchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
)

// Transaction size limits in bytes.
const (
	MaxTxKind = 64
	MaxTxData = 64 << 10
)

// validate holds the struct rules for transactions. It is safe for
// concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================

// Tx is an application transaction as it is signed by the sender. The core
// does not interpret Kind or Data.
type Tx struct {
	Sender    AccountID `json:"sender" validate:"required"`
	Kind      string    `json:"kind" validate:"required,max=64"`  // Application label: upload, grant, review, transfer.
	Data      []byte    `json:"data" validate:"max=65536"`        // Opaque application payload.
	TimeStamp uint64    `json:"timestamp" validate:"required"`    // Unix seconds chosen by the sender.
}

// NewTx constructs a new transaction stamped with the current time.
func NewTx(sender AccountID, kind string, data []byte) (Tx, error) {
	if !sender.IsAccountID() {
		return Tx{}, fmt.Errorf("sender account is not properly formatted")
	}

	if len(data) > MaxTxData {
		return Tx{}, fmt.Errorf("data is %d bytes, max is %d", len(data), MaxTxData)
	}

	tx := Tx{
		Sender:    sender,
		Kind:      kind,
		Data:      data,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}

	return tx, nil
}

// SigningBytes returns the canonical encoding of the transaction that is
// signed by the sender.
func (tx Tx) SigningBytes() []byte {
	w := codec.NewWriter(64 + len(tx.Kind) + len(tx.Data))
	tx.encode(w)
	return w.Encoded()
}

func (tx Tx) encode(w *codec.Writer) {
	w.Uint8(codec.Version)
	w.String(string(tx.Sender))
	w.Uint64(tx.TimeStamp)
	w.String(tx.Kind)
	w.Bytes(tx.Data)
}

// Sign uses the specified private key to sign the transaction. The key must
// belong to the sender.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if PublicKeyToAccountID(privateKey.PublicKey) != tx.Sender {
		return SignedTx{}, fmt.Errorf("private key does not belong to sender %s", tx.Sender)
	}

	sig, err := signature.Sign(tx.SigningBytes(), privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:  tx,
		Sig: sig,
	}
	signedTx.ID = signedTx.ComputeID()

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients
// provide transactions for inclusion into the blockchain. The ID is content
// addressed over the signing bytes and the signature.
type SignedTx struct {
	Tx
	ID  Hash          `json:"id"`
	Sig hexutil.Bytes `json:"sig" validate:"len=65"`
}

// ComputeID recalculates the content address of the transaction.
func (tx SignedTx) ComputeID() Hash {
	w := codec.NewWriter(128 + len(tx.Kind) + len(tx.Data))
	tx.Tx.encode(w)
	w.Bytes(tx.Sig)
	return sha256.Sum256(w.Encoded())
}

// Validate verifies the transaction is well formed: the struct rules hold,
// the id matches the content and the signature was produced by the sender.
// Every failure wraps ErrMalformedTransaction.
func (tx SignedTx) Validate() error {
	if !utf8.ValidString(tx.Kind) || !utf8.ValidString(string(tx.Sender)) {
		return fmt.Errorf("%w: kind and sender must be utf-8", ErrMalformedTransaction)
	}

	// The struct rule counts runes, the limit is in bytes.
	if len(tx.Kind) > MaxTxKind {
		return fmt.Errorf("%w: kind is %d bytes, max is %d", ErrMalformedTransaction, len(tx.Kind), MaxTxKind)
	}

	if err := validate.Struct(tx); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedTransaction, err)
	}

	if !tx.Sender.IsAccountID() {
		return fmt.Errorf("%w: invalid sender account %q", ErrMalformedTransaction, tx.Sender)
	}

	if id := tx.ComputeID(); id != tx.ID {
		return fmt.Errorf("%w: id %s does not match content %s", ErrMalformedTransaction, tx.ID, id)
	}

	from, err := signature.FromAddress(tx.SigningBytes(), tx.Sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedTransaction, err)
	}

	if AccountID(from) != tx.Sender {
		return fmt.Errorf("%w: signed by %s, not sender %s", ErrMalformedTransaction, from, tx.Sender)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s:%s", tx.Sender, tx.Kind, tx.ID.String()[:18])
}

// =============================================================================

// EncodeTx returns the canonical encoding of a signed transaction as used
// inside blocks and on the wire.
func EncodeTx(tx SignedTx) []byte {
	w := codec.NewWriter(160 + len(tx.Kind) + len(tx.Data))
	encodeTx(w, tx)
	return w.Encoded()
}

// DecodeTx decodes a canonically encoded signed transaction. The claimed id
// is kept as is; Validate checks it against the content.
func DecodeTx(data []byte) (SignedTx, error) {
	r := codec.NewReader(data)
	tx := decodeTx(r)
	if err := r.Done(); err != nil {
		return SignedTx{}, fmt.Errorf("decoding transaction: %w", err)
	}

	return tx, nil
}

func encodeTx(w *codec.Writer, tx SignedTx) {
	w.Fixed32(tx.ID)
	tx.Tx.encode(w)
	w.Bytes(tx.Sig)
}

func decodeTx(r *codec.Reader) SignedTx {
	var tx SignedTx
	tx.ID = r.Fixed32()
	r.Version()
	tx.Sender = AccountID(r.String())
	tx.TimeStamp = r.Uint64()
	tx.Kind = r.String()
	tx.Data = r.Bytes()
	tx.Sig = r.Bytes()

	return tx
}
