package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Layr-Labs/crypto-libs/pkg/bn254"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Nonce is the per-account transaction sequence number
type Nonce uint32

// PubKeyHashLen is the byte length of a ledger public key fingerprint
const PubKeyHashLen = 20

// pubKeyHashPrefix is the canonical textual prefix for rendered fingerprints
const pubKeyHashPrefix = "sync:"

// PubKeyHash is the fingerprint of a ledger signing key: the trailing 20
// bytes of keccak256 over the serialized BN254 public key.
type PubKeyHash [PubKeyHashLen]byte

// PubKeyHashFromBytes derives the fingerprint for a serialized public key
func PubKeyHashFromBytes(pubKeyBytes []byte) PubKeyHash {
	hash := crypto.Keccak256(pubKeyBytes)
	var pkh PubKeyHash
	copy(pkh[:], hash[32-PubKeyHashLen:])
	return pkh
}

// ParsePubKeyHash parses the "sync:<hex>" rendering produced by String
func ParsePubKeyHash(s string) (PubKeyHash, error) {
	var pkh PubKeyHash
	if !strings.HasPrefix(s, pubKeyHashPrefix) {
		return pkh, fmt.Errorf("pubkey hash must start with %q, got %q", pubKeyHashPrefix, s)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, pubKeyHashPrefix))
	if err != nil {
		return pkh, fmt.Errorf("invalid pubkey hash hex: %w", err)
	}
	if len(raw) != PubKeyHashLen {
		return pkh, fmt.Errorf("pubkey hash must be %d bytes, got %d", PubKeyHashLen, len(raw))
	}
	copy(pkh[:], raw)
	return pkh, nil
}

func (pkh PubKeyHash) String() string {
	return pubKeyHashPrefix + hex.EncodeToString(pkh[:])
}

// IsZero reports whether the fingerprint is unset
func (pkh PubKeyHash) IsZero() bool {
	return pkh == PubKeyHash{}
}

// MarshalText renders the canonical "sync:<hex>" form
func (pkh PubKeyHash) MarshalText() ([]byte, error) {
	return []byte(pkh.String()), nil
}

// UnmarshalText parses the canonical "sync:<hex>" form
func (pkh *PubKeyHash) UnmarshalText(text []byte) error {
	parsed, err := ParsePubKeyHash(string(text))
	if err != nil {
		return err
	}
	*pkh = parsed
	return nil
}

// TxSignature is the ledger-native signature layer of a transaction:
// a BN254 signature over the keccak256 digest of the transaction's
// signed bytes, together with the signing public key.
type TxSignature struct {
	PubKey    hexutil.Bytes `json:"pubKey"`
	Signature hexutil.Bytes `json:"signature"`
}

// Verify checks the signature over message. Malformed key or signature
// material reports false rather than an error; callers only care whether
// the transaction passes its self-check.
func (s *TxSignature) Verify(message []byte) bool {
	if s == nil || len(s.PubKey) == 0 || len(s.Signature) == 0 {
		return false
	}

	pubKey, err := bn254.NewPublicKeyFromBytes(s.PubKey)
	if err != nil {
		return false
	}

	sig, err := bn254.NewSignatureFromBytes(s.Signature)
	if err != nil {
		return false
	}

	// Signatures are produced with SignSolidityCompatible; verification
	// must use the matching hash-to-curve.
	digest := crypto.Keccak256Hash(message)
	valid, err := sig.VerifySolidityCompatible(pubKey, digest)
	if err != nil {
		return false
	}
	return valid
}

// PubKeyHash returns the fingerprint of the signing key
func (s *TxSignature) PubKeyHash() PubKeyHash {
	return PubKeyHashFromBytes(s.PubKey)
}

// SignTxBytes produces a TxSignature over the given signed bytes
func SignTxBytes(key *bn254.PrivateKey, message []byte) (*TxSignature, error) {
	digest := crypto.Keccak256Hash(message)
	sig, err := key.SignSolidityCompatible(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction digest: %w", err)
	}
	return &TxSignature{
		PubKey:    key.Public().Bytes(),
		Signature: sig.Bytes(),
	}, nil
}

// Tx is a ledger transaction. CheckCorrectness is the native self-check:
// structural validity plus the ledger signature, independent of any
// Ethereum signature layer attached to the submission.
type Tx interface {
	TxType() string
	Account() common.Address
	Nonce() Nonce
	SignedBytes() []byte
	CheckCorrectness() bool
}

// SignedTx pairs a transaction with the Ethereum signature data it was
// submitted with. EthSignData is nil for transaction kinds that do not
// require an Ethereum signature.
type SignedTx struct {
	Tx          Tx           `json:"tx"`
	EthSignData *EthSignData `json:"ethSignData,omitempty"`
}
