package types

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/crypto-libs/pkg/bn254"
	"github.com/ethereum/go-ethereum/common"
)

// Transaction type tags, also used as the leading byte of signed bytes
const (
	TxTypeTransfer     = "Transfer"
	TxTypeWithdraw     = "Withdraw"
	TxTypeChangePubKey = "ChangePubKey"
)

const (
	txTagTransfer     byte = 0x05
	txTagWithdraw     byte = 0x03
	txTagChangePubKey byte = 0x07
)

// Transfer moves funds between two ledger accounts
type Transfer struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    *big.Int       `json:"amount"`
	Fee       *big.Int       `json:"fee"`
	TxNonce   Nonce          `json:"nonce"`
	Signature *TxSignature   `json:"signature,omitempty"`
}

func (t *Transfer) TxType() string          { return TxTypeTransfer }
func (t *Transfer) Account() common.Address { return t.From }
func (t *Transfer) Nonce() Nonce            { return t.TxNonce }

// SignedBytes is the canonical byte encoding covered by the ledger signature
func (t *Transfer) SignedBytes() []byte {
	out := []byte{txTagTransfer}
	out = append(out, t.From.Bytes()...)
	out = append(out, t.To.Bytes()...)
	out = appendBigInt(out, t.Amount)
	out = appendBigInt(out, t.Fee)
	out = appendNonce(out, t.TxNonce)
	return out
}

func (t *Transfer) CheckCorrectness() bool {
	if t.From == (common.Address{}) || t.To == (common.Address{}) {
		return false
	}
	if !validAmount(t.Amount) || !validAmount(t.Fee) {
		return false
	}
	return t.Signature.Verify(t.SignedBytes())
}

// Sign attaches the ledger signature for the given key
func (t *Transfer) Sign(key *bn254.PrivateKey) error {
	sig, err := SignTxBytes(key, t.SignedBytes())
	if err != nil {
		return err
	}
	t.Signature = sig
	return nil
}

// Withdraw moves funds from a ledger account to an Ethereum address
type Withdraw struct {
	From      common.Address `json:"from"`
	EthTo     common.Address `json:"ethTo"`
	Amount    *big.Int       `json:"amount"`
	Fee       *big.Int       `json:"fee"`
	TxNonce   Nonce          `json:"nonce"`
	Signature *TxSignature   `json:"signature,omitempty"`
}

func (w *Withdraw) TxType() string          { return TxTypeWithdraw }
func (w *Withdraw) Account() common.Address { return w.From }
func (w *Withdraw) Nonce() Nonce            { return w.TxNonce }

func (w *Withdraw) SignedBytes() []byte {
	out := []byte{txTagWithdraw}
	out = append(out, w.From.Bytes()...)
	out = append(out, w.EthTo.Bytes()...)
	out = appendBigInt(out, w.Amount)
	out = appendBigInt(out, w.Fee)
	out = appendNonce(out, w.TxNonce)
	return out
}

func (w *Withdraw) CheckCorrectness() bool {
	if w.From == (common.Address{}) {
		return false
	}
	if !validAmount(w.Amount) || !validAmount(w.Fee) {
		return false
	}
	return w.Signature.Verify(w.SignedBytes())
}

func (w *Withdraw) Sign(key *bn254.PrivateKey) error {
	sig, err := SignTxBytes(key, w.SignedBytes())
	if err != nil {
		return err
	}
	w.Signature = sig
	return nil
}

// ChangePubKey rotates the signing key associated with an account.
//
// EthSignature is the optional embedded Ethereum signature over the change.
// When it is absent the operation may still be admitted if a prior on-chain
// authorization for (account, nonce, new key fingerprint) exists; resolving
// that is the signature checker's job, not the transaction's.
type ChangePubKey struct {
	AccountAddr  common.Address      `json:"account"`
	NewPkHash    PubKeyHash          `json:"newPkHash"`
	TxNonce      Nonce               `json:"nonce"`
	EthSignature *PackedEthSignature `json:"ethSignature,omitempty"`
	Signature    *TxSignature        `json:"signature,omitempty"`
}

func (c *ChangePubKey) TxType() string          { return TxTypeChangePubKey }
func (c *ChangePubKey) Account() common.Address { return c.AccountAddr }
func (c *ChangePubKey) Nonce() Nonce            { return c.TxNonce }

func (c *ChangePubKey) SignedBytes() []byte {
	out := []byte{txTagChangePubKey}
	out = append(out, c.AccountAddr.Bytes()...)
	out = append(out, c.NewPkHash[:]...)
	out = appendNonce(out, c.TxNonce)
	return out
}

// EthSignedMessage is the text the account owner signs to approve the
// rotation when the approval is embedded in the transaction itself.
func (c *ChangePubKey) EthSignedMessage() []byte {
	return []byte(fmt.Sprintf(
		"Register pubkey:\n\n%s\nnonce: %d\naccount: %s\n\nOnly sign this message for a trusted client!",
		c.NewPkHash.String(), c.TxNonce, strings.ToLower(c.AccountAddr.Hex())))
}

// CheckCorrectness requires the ledger signature to be made with the key
// being rotated in: the signing key's fingerprint must equal NewPkHash.
// An embedded Ethereum approval must recover to the account being rotated;
// its absence is acceptable only alongside an on-chain authorization,
// which the signature checker resolves before this check runs.
func (c *ChangePubKey) CheckCorrectness() bool {
	if c.AccountAddr == (common.Address{}) || c.NewPkHash.IsZero() {
		return false
	}
	if c.EthSignature != nil {
		signer, err := c.EthSignature.RecoverSigner(c.EthSignedMessage())
		if err != nil || signer != c.AccountAddr {
			return false
		}
	}
	if !c.Signature.Verify(c.SignedBytes()) {
		return false
	}
	return c.Signature.PubKeyHash() == c.NewPkHash
}

// Sign stamps NewPkHash from the new key, then signs with it. The stamp
// happens first because NewPkHash is part of the signed bytes.
func (c *ChangePubKey) Sign(newKey *bn254.PrivateKey) error {
	c.NewPkHash = PubKeyHashFromBytes(newKey.Public().Bytes())
	sig, err := SignTxBytes(newKey, c.SignedBytes())
	if err != nil {
		return err
	}
	c.Signature = sig
	return nil
}

// SignEth embeds the account owner's approval. Call after Sign: the
// approval message covers the stamped NewPkHash.
func (c *ChangePubKey) SignEth(key *ecdsa.PrivateKey) error {
	sig, err := SignEthMessage(key, c.EthSignedMessage())
	if err != nil {
		return err
	}
	c.EthSignature = sig
	return nil
}

func appendNonce(out []byte, nonce Nonce) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(nonce))
	return append(out, buf[:]...)
}

// appendBigInt encodes the value as a 16-byte big-endian field
func appendBigInt(out []byte, v *big.Int) []byte {
	var buf [16]byte
	if v != nil {
		v.FillBytes(buf[:])
	}
	return append(out, buf[:]...)
}

func validAmount(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}
