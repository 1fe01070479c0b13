package signature_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fractalchain/node/foundation/blockchain/signature"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(value, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	pubBytes := crypto.FromECDSAPub(&pk.PublicKey)
	if err := signature.Verify(value, pubBytes, sig); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	addr := signature.AddressFromPublicKey(&pk.PublicKey)
	if addr == "" || addr[:2] != "0x" {
		t.Fatalf("Should get back a 0x-prefixed address, got %q", addr)
	}

	str := signature.SignatureString(sig)
	if str == "" || str[:2] != "0x" {
		t.Fatalf("Should get back a 0x-prefixed signature string, got %q", str)
	}
}

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}
	hash := "0x0f6887ac85101d6d6425a617edf35bd721b5f619fb92c36c3d2224e3bdb0ee5a"

	h := signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the right hash: %s", h[:6])
	}

	h = signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the same hash twice.")
	}
}

func Test_SignRejectsWrongKey(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(value, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	otherPubBytes := crypto.FromECDSAPub(&other.PublicKey)
	if err := signature.Verify(value, otherPubBytes, sig); err == nil {
		t.Fatalf("Should reject a signature verified against the wrong public key")
	}
}

func Test_SignRejectsTamperedValue(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	value1 := struct {
		Name string
	}{
		Name: "Bill",
	}
	value2 := struct {
		Name string
	}{
		Name: "Jill",
	}

	sig, err := signature.Sign(value1, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	pubBytes := crypto.FromECDSAPub(&pk.PublicKey)
	if err := signature.Verify(value2, pubBytes, sig); err == nil {
		t.Fatalf("Should reject a signature checked against a different value")
	}
}
