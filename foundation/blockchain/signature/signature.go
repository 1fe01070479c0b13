// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Hash returns a unique string for the value using a single round of SHA-256.
// Used for header hashing, not for double-hashing (see Hash2 in the merkle
// and database packages where sha256d is required).
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the data. The signature is
// ASN.1 DER-encoded ECDSA over SHA-256 of the stamped value, per the
// network's signing convention.
func Sign(value any, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	priv := secp256k1PrivateKey(privateKey)
	sig := secp256k1ecdsa.Sign(priv, data)

	return sig.Serialize(), nil
}

// Verify checks that sig, a DER-encoded ECDSA signature, was produced over
// value by the holder of publicKeyBytes (an uncompressed SEC1 public key).
func Verify(value any, publicKeyBytes, sig []byte) error {
	data, err := stamp(value)
	if err != nil {
		return err
	}

	pub, err := secp256k1.ParsePubKey(publicKeyBytes)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}

	parsed, err := secp256k1ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	if !parsed.Verify(data, pub) {
		return errors.New("signature does not match public key")
	}

	return nil
}

// AddressFromPublicKey derives the hex address for a public key using
// ripemd160(sha256(pubkey)), the algorithm this network requires.
func AddressFromPublicKey(publicKey *ecdsa.PublicKey) string {
	return AddressFromPublicKeyBytes(crypto.FromECDSAPub(publicKey))
}

// AddressFromPublicKeyBytes derives the hex address from a raw uncompressed
// public key, for cases (like stored transaction public keys) where the
// caller holds bytes rather than a parsed *ecdsa.PublicKey.
func AddressFromPublicKeyBytes(pubBytes []byte) string {
	shaHash := sha256.Sum256(pubBytes)

	ripe := ripemd160.New()
	ripe.Write(shaHash[:])
	addr := ripe.Sum(nil)

	return "0x" + hex.EncodeToString(addr)
}

// SignatureString returns the DER-encoded signature as a hex string.
func SignatureString(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}

// =============================================================================

// secp256k1PrivateKey converts a stdlib ECDSA private key (as produced by
// go-ethereum's key loading/generation helpers) into the decred secp256k1
// type the Sign/Verify pair above operates on.
func secp256k1PrivateKey(privateKey *ecdsa.PrivateKey) *secp256k1.PrivateKey {
	var keyBytes [32]byte
	privateKey.D.FillBytes(keyBytes[:])
	return secp256k1.PrivKeyFromBytes(keyBytes[:])
}

// stamp returns a hash of 32 bytes that represents this data with the
// FractalChain domain-separation stamp embedded into the final hash. Both
// rounds are SHA-256, per the network's "ECDSA over SHA-256" requirement.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dataHash := sha256.Sum256(v)

	stamp := []byte("\x19FractalChain Signed Message:\n32")
	full := make([]byte, 0, len(stamp)+len(dataHash))
	full = append(full, stamp...)
	full = append(full, dataHash[:]...)

	finalHash := sha256.Sum256(full)
	return finalHash[:], nil
}
