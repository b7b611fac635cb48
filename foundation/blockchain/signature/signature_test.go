package signature_test

import (
	"testing"

	"github.com/contentledger/blockchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	data := []byte("upload:QmContentHash")

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(data, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if len(sig) != signature.Length {
		t.Fatalf("Should get back a %d byte signature, got %d.", signature.Length, len(sig))
	}

	if err := signature.VerifySignature(sig); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	addr, err := signature.FromAddress(data, sig)
	if err != nil {
		t.Fatalf("Should be able to generate from address: %s", err)
	}

	if from != addr {
		t.Logf("got: %s", addr)
		t.Logf("exp: %s", from)
		t.Fatalf("Should get back the right address.")
	}

	str := signature.SignatureString(sig)
	if len(str) != 2+2*signature.Length {
		t.Fatalf("Should get back a hex encoded signature string: %s", str)
	}
}

func Test_Tampered(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign([]byte("grant:reader"), pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	addr, err := signature.FromAddress([]byte("grant:writer"), sig)
	if err == nil && addr == from {
		t.Fatalf("Should not recover the signer for different data.")
	}

	bad := make([]byte, len(sig))
	copy(bad, sig)
	bad[64] = 5
	if err := signature.VerifySignature(bad); err == nil {
		t.Fatalf("Should reject a signature with an invalid recovery id.")
	}

	if err := signature.VerifySignature(sig[:64]); err == nil {
		t.Fatalf("Should reject a short signature.")
	}
}
