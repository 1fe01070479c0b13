package database

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/signature"
)

// Tx is the unsigned payload two parties agree to when value moves between
// addresses. An empty FromID marks a coinbase transaction.
type Tx struct {
	FromID    AccountID     `json:"from_address"`
	ToID      AccountID     `json:"to_address"`
	Amount    amount.Amount `json:"amount"`
	Fee       amount.Amount `json:"fee"`
	TimeStamp uint64        `json:"timestamp"`
	Nonce     uint64        `json:"nonce"`
}

// NewTx constructs a new non-coinbase transaction payload ready for signing.
func NewTx(fromID, toID AccountID, value, fee amount.Amount, nonce uint64) (Tx, error) {
	if !toID.IsAccountID() {
		return Tx{}, errors.New("to account is not properly formatted")
	}
	if !fromID.IsAccountID() {
		return Tx{}, errors.New("from account is not properly formatted")
	}
	if fromID == toID {
		return Tx{}, fmt.Errorf("invalid transaction, sending to yourself, from %s, to %s", fromID, toID)
	}
	if value.IsNegative() || fee.IsNegative() {
		return Tx{}, errors.New("amount and fee must be non-negative")
	}

	tx := Tx{
		FromID:    fromID,
		ToID:      toID,
		Amount:    value,
		Fee:       fee,
		TimeStamp: uint64(time.Now().UTC().Unix()),
		Nonce:     nonce,
	}

	return tx, nil
}

// NewCoinbaseTx constructs the single-output reward transaction that always
// occupies position 0 of a block. It carries no from address and no
// signature.
func NewCoinbaseTx(minerID AccountID, reward amount.Amount, height uint64) Tx {
	return Tx{
		ToID:      minerID,
		Amount:    reward,
		TimeStamp: uint64(time.Now().UTC().Unix()),
		Nonce:     height,
	}
}

// IsCoinbase reports whether this payload represents a coinbase output.
func (tx Tx) IsCoinbase() bool {
	return tx.FromID == ""
}

// Sign uses the specified private key to sign the transaction, producing a
// SignedTx that carries the signature and the public key it was produced
// with.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if !tx.ToID.IsAccountID() {
		return SignedTx{}, errors.New("to account is not properly formatted")
	}

	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:        tx,
		Signature: sig,
		PublicKey: crypto.FromECDSAPub(&privateKey.PublicKey),
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx adds the signature and public key that authorize a Tx. This is
// how a wallet hands a transaction to the network. Coinbase transactions
// have an empty Signature and PublicKey. The signature is ASN.1 DER-encoded
// ECDSA, so (unlike a recoverable signature) the public key must always
// travel alongside it.
type SignedTx struct {
	Tx
	Signature []byte `json:"signature"`
	PublicKey []byte `json:"public_key"`
}

// Validate verifies a non-coinbase transaction's structural invariants and
// its signature; it does not check balances, which depend on chain state.
func (tx SignedTx) Validate() error {
	if tx.IsCoinbase() {
		if len(tx.Signature) != 0 {
			return errors.New("coinbase transaction must not carry a signature")
		}
		return nil
	}

	if !tx.ToID.IsAccountID() {
		return errors.New("invalid account for to account")
	}
	if !tx.FromID.IsAccountID() {
		return errors.New("invalid account for from account")
	}
	if tx.Amount.IsNegative() || tx.Fee.IsNegative() {
		return errors.New("amount and fee must be non-negative")
	}

	if err := signature.Verify(tx.Tx, tx.PublicKey, tx.Signature); err != nil {
		return err
	}

	if addr := signature.AddressFromPublicKeyBytes(tx.PublicKey); AccountID(addr) != tx.FromID {
		return fmt.Errorf("signature public key does not match from address, got %s, exp %s", addr, tx.FromID)
	}

	return nil
}

// FromAccount returns the account id that authored the transaction, which
// for a signed tx is simply FromID (already validated against PublicKey).
func (tx SignedTx) FromAccount() (AccountID, error) {
	if tx.IsCoinbase() {
		return "", errors.New("coinbase transaction has no from account")
	}
	return tx.FromID, nil
}

// SignatureString returns the signature as a hex string.
func (tx SignedTx) SignatureString() string {
	if len(tx.Signature) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(tx.Signature)
}

// String implements fmt.Stringer for logging.
func (tx SignedTx) String() string {
	from := tx.FromID
	if tx.IsCoinbase() {
		from = "COINBASE"
	}
	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}

// =============================================================================

// BlockTx is the transaction exactly as it is recorded in a block and
// hashed into the merkle tree. No additional fields are layered on here:
// the network's gas model is folded into Tx.Fee, unlike the teacher's
// separate GasPrice/GasUnits fields.
type BlockTx struct {
	SignedTx
}

// NewBlockTx wraps a signed transaction for inclusion in a block.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{SignedTx: signedTx}
}

// TxID computes the transaction id: SHA-256 of the canonical serialization
// of from_address, to_address, amount, fee, timestamp, signature,
// public_key and nonce, in that order.
func (tx BlockTx) TxID() ([32]byte, error) {
	payload := struct {
		FromID    AccountID     `json:"from_address"`
		ToID      AccountID     `json:"to_address"`
		Amount    amount.Amount `json:"amount"`
		Fee       amount.Amount `json:"fee"`
		TimeStamp uint64        `json:"timestamp"`
		Signature string        `json:"signature"`
		PublicKey string        `json:"public_key"`
		Nonce     uint64        `json:"nonce"`
	}{
		FromID:    tx.FromID,
		ToID:      tx.ToID,
		Amount:    tx.Amount,
		Fee:       tx.Fee,
		TimeStamp: tx.TimeStamp,
		Signature: hex.EncodeToString(tx.Signature),
		PublicKey: hex.EncodeToString(tx.PublicKey),
		Nonce:     tx.Nonce,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(data), nil
}

// TxIDHex returns the hex-encoded transaction id.
func (tx BlockTx) TxIDHex() string {
	id, err := tx.TxID()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(id[:])
}

// Hash implements the merkle Hashable interface: the merkle tree is built
// over transaction ids.
func (tx BlockTx) Hash() ([]byte, error) {
	id, err := tx.TxID()
	if err != nil {
		return nil, err
	}
	return id[:], nil
}

// Equals implements the merkle Hashable interface.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	id, err := tx.TxID()
	if err != nil {
		return false
	}
	otherID, err := otherTx.TxID()
	if err != nil {
		return false
	}
	return id == otherID
}
