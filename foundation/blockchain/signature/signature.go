// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ledgerID is an arbitrary number added to the recovery id of every
// signature. It makes it clear a signature was produced for this ledger.
// Ethereum and Bitcoin do this as well, but they use the value of 27.
const ledgerID = 29

// Length is the size of a signature in the [R|S|V] format.
const Length = crypto.SignatureLength

// =============================================================================

// Sign uses the specified private key to sign the data. The signature is
// returned in the [R|S|V] format with the ledger id added to V.
func Sign(data []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	digest := stamp(data)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest, rs) {
		return nil, errors.New("invalid signature")
	}

	sig[crypto.RecoveryIDOffset] += ledgerID

	return sig, nil
}

// VerifySignature verifies the signature conforms to our standards.
func VerifySignature(sig []byte) error {
	if len(sig) != Length {
		return errors.New("invalid signature length")
	}

	// Check the recovery id is either 0 or 1.
	v := sig[crypto.RecoveryIDOffset] - ledgerID
	if v != 0 && v != 1 {
		return errors.New("invalid recovery id")
	}

	// Check the signature values are valid.
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress extracts the address for the account that signed the data.
func FromAddress(data []byte, sig []byte) (string, error) {
	if err := VerifySignature(sig); err != nil {
		return "", err
	}

	// NOTE: If the same exact data for the given signature is not provided
	// we will get the wrong from address. The public key is being extracted
	// from the data and signature.

	raw := make([]byte, Length)
	copy(raw, sig)
	raw[crypto.RecoveryIDOffset] -= ledgerID

	// Capture the public key associated with this data and signature.
	publicKey, err := crypto.SigToPub(stamp(data), raw)
	if err != nil {
		return "", err
	}

	// Extract the account address from the public key.
	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// SignatureString returns the signature as a string.
func SignatureString(sig []byte) string {
	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the ledger stamp embedded into the final hash.
func stamp(data []byte) []byte {

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(data)

	// This stamp is used so signatures we produce when signing data
	// are always unique to this ledger.
	stamp := []byte("\x19Ledger Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash)
}
