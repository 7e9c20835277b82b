// Package signaturechecker is the signature-verification gate in front of
// the pending-transaction pool. A dedicated worker drains verification
// requests from a channel and fans each out to its own goroutine, which
// checks the submission's Ethereum signature layer (recoverable or
// EIP-1271), consults the eth watcher for delegated pubkey-change
// authorizations, and runs the transaction's native self-check. Results
// come back on a per-request reply channel.
package signaturechecker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jingkai1/zksync/pkg/ethwatch"
	"github.com/jingkai1/zksync/pkg/types"
)

// VerifiedTx wraps a transaction whose signatures have been checked.
//
// The underlying SignedTx is a private field: the only way to obtain a
// VerifiedTx is through successful verification in this package, so
// holding one certifies that both the Ethereum signature layer and the
// native self-check passed.
type VerifiedTx struct {
	signed types.SignedTx
}

// Inner returns the wrapped submission without giving up the wrapper
func (v *VerifiedTx) Inner() *types.SignedTx {
	return &v.signed
}

// IntoInner unwraps the submission for handoff to the next pipeline stage
func (v *VerifiedTx) IntoInner() types.SignedTx {
	return v.signed
}

// VerificationResponse is the single reply delivered per request
type VerificationResponse struct {
	Verified *VerifiedTx
	Err      error
}

// VerifyTxSignatureRequest asks the checker to verify one submission.
// Response is single-use and exclusively owned by this request; the
// checker sends exactly one VerificationResponse on it.
type VerifyTxSignatureRequest struct {
	Tx          types.Tx
	EthSignData *types.EthSignData
	Response    chan VerificationResponse
}

// NewVerifyTxSignatureRequest builds a request with its reply channel.
// The channel is buffered so the reply can be delivered even if the
// caller has stopped waiting.
func NewVerifyTxSignatureRequest(tx types.Tx, ethSignData *types.EthSignData) *VerifyTxSignatureRequest {
	return &VerifyTxSignatureRequest{
		Tx:          tx,
		EthSignData: ethSignData,
		Response:    make(chan VerificationResponse, 1),
	}
}

// verify is the decision procedure for one request. It is the sole
// constructor path for VerifiedTx.
//
// Order of checks:
//  1. a pubkey change carrying no embedded Ethereum signature must have a
//     matching on-chain authorization;
//  2. attached Ethereum signature data is checked per its scheme;
//  3. the transaction's native self-check must pass.
func verify(req *VerifyTxSignatureRequest, ethWatch chan<- ethwatch.Request, log *zap.Logger) (*VerifiedTx, error) {
	if err := verifyEthSignature(req, ethWatch, log); err != nil {
		return nil, err
	}

	if !req.Tx.CheckCorrectness() {
		return nil, ErrIncorrectTx
	}

	return &VerifiedTx{signed: types.SignedTx{
		Tx:          req.Tx,
		EthSignData: req.EthSignData,
	}}, nil
}

func verifyEthSignature(req *VerifyTxSignatureRequest, ethWatch chan<- ethwatch.Request, log *zap.Logger) error {
	// A ChangePubKey without an embedded approval relies on a prior
	// on-chain authorization for the rotation. An embedded approval is
	// verified by the transaction's own correctness check.
	if changePk, ok := req.Tx.(*types.ChangePubKey); ok && changePk.EthSignature == nil {
		resp := make(chan bool, 1)
		ethWatch <- ethwatch.IsPubKeyChangeAuthorizedRequest{
			Address:    changePk.AccountAddr,
			Nonce:      changePk.TxNonce,
			PubKeyHash: changePk.NewPkHash,
			Resp:       resp,
		}

		authorized, ok := <-resp
		if !ok {
			// The watcher is assumed co-resident and always answers;
			// a closed reply channel is a wiring defect, not bad input.
			panic("eth watch reply channel closed while awaiting pubkey change authorization")
		}
		if !authorized {
			return ErrChangePkNotAuthorized
		}
	}

	if req.EthSignData == nil {
		return nil
	}

	switch req.EthSignData.Signature.Type {
	case types.EthSignatureTypeEthereum:
		packed, err := req.EthSignData.Signature.PackedSignature()
		if err != nil {
			return ErrIncorrectEthSignature
		}
		signer, err := packed.RecoverSigner([]byte(req.EthSignData.Message))
		if err != nil || signer != req.Tx.Account() {
			return ErrIncorrectEthSignature
		}

	case types.EthSignatureTypeEIP1271:
		message := wrapPersonalMessage(req.EthSignData.Message)

		resp := make(chan ethwatch.EIP1271Result, 1)
		ethWatch <- ethwatch.CheckEIP1271SignatureRequest{
			Address:   req.Tx.Account(),
			Message:   message,
			Signature: req.EthSignData.Signature.Signature,
			Resp:      resp,
		}

		result, ok := <-resp
		if !ok {
			panic("eth watch reply channel closed while awaiting EIP-1271 check")
		}
		if result.Err != nil {
			log.Sugar().Warnw("EIP-1271 check errored in eth watch",
				"account", req.Tx.Account().Hex(), "error", result.Err)
			return ErrEIP1271SignatureVerificationFail
		}
		if !result.Valid {
			return ErrIncorrectTx
		}

	default:
		return ErrIncorrectEthSignature
	}

	return nil
}

// wrapPersonalMessage applies the canonical EIP-191 personal-message
// encoding contract accounts expect to have been hashed.
func wrapPersonalMessage(message string) []byte {
	return []byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message))
}
