package types

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PackedEthSignatureLen is r || s || v
const PackedEthSignatureLen = 65

// PackedEthSignature is a 65-byte recoverable secp256k1 signature over the
// personal-message hash of some message (EIP-191 "\x19Ethereum Signed
// Message" encoding).
type PackedEthSignature [PackedEthSignatureLen]byte

// NewPackedEthSignature validates length and copies the raw signature bytes
func NewPackedEthSignature(raw []byte) (*PackedEthSignature, error) {
	if len(raw) != PackedEthSignatureLen {
		return nil, fmt.Errorf("packed eth signature must be %d bytes, got %d", PackedEthSignatureLen, len(raw))
	}
	var sig PackedEthSignature
	copy(sig[:], raw)
	return &sig, nil
}

// SignEthMessage signs message with the Ethereum personal-message encoding
func SignEthMessage(key *ecdsa.PrivateKey, message []byte) (*PackedEthSignature, error) {
	raw, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign eth message: %w", err)
	}
	return NewPackedEthSignature(raw)
}

// RecoverSigner recovers the Ethereum address that produced this signature
// over message. The recovery id is accepted in either the raw {0,1} or the
// transaction-style {27,28} form.
func (s *PackedEthSignature) RecoverSigner(message []byte) (common.Address, error) {
	sig := make([]byte, PackedEthSignatureLen)
	copy(sig, s[:])
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// Bytes returns the raw 65-byte signature
func (s *PackedEthSignature) Bytes() []byte {
	out := make([]byte, PackedEthSignatureLen)
	copy(out, s[:])
	return out
}

// MarshalText renders the signature as 0x-prefixed hex
func (s PackedEthSignature) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(s[:])), nil
}

// UnmarshalText parses the 0x-prefixed hex form
func (s *PackedEthSignature) UnmarshalText(text []byte) error {
	raw, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	parsed, err := NewPackedEthSignature(raw)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// EthSignatureType distinguishes the two Ethereum signature schemes a
// submission may carry.
type EthSignatureType string

const (
	// EthSignatureTypeEthereum is a plain recoverable signature
	EthSignatureTypeEthereum EthSignatureType = "EthereumSignature"
	// EthSignatureTypeEIP1271 is an opaque signature validated by the
	// account's contract via EIP-1271 rather than by local recovery
	EthSignatureTypeEIP1271 EthSignatureType = "EIP1271Signature"
)

// TxEthSignature is the scheme-tagged Ethereum signature of a submission
type TxEthSignature struct {
	Type      EthSignatureType `json:"type"`
	Signature hexutil.Bytes    `json:"signature"`
}

// PackedSignature interprets the signature bytes as a recoverable
// signature. Only meaningful for EthSignatureTypeEthereum.
func (s *TxEthSignature) PackedSignature() (*PackedEthSignature, error) {
	return NewPackedEthSignature(s.Signature)
}

// EthSignData is the Ethereum signature layer attached to a submitted
// transaction: the signature and the exact message the user signed.
type EthSignData struct {
	Signature TxEthSignature `json:"signature"`
	Message   string         `json:"message"`
}
