package signaturechecker

import "github.com/pkg/errors"

// Verification failures delivered to callers on the request's response
// channel. All four are expected outcomes of bad input; match with
// errors.Is.
var (
	// ErrChangePkNotAuthorized: a signature-less pubkey change had no
	// matching on-chain authorization
	ErrChangePkNotAuthorized = errors.New("change pubkey operation is not authorized")

	// ErrIncorrectEthSignature: recoverable signature did not recover,
	// or recovered an account other than the transaction's
	ErrIncorrectEthSignature = errors.New("incorrect ethereum signature")

	// ErrEIP1271SignatureVerificationFail: the authority errored while
	// evaluating a contract signature
	ErrEIP1271SignatureVerificationFail = errors.New("EIP-1271 signature verification failed")

	// ErrIncorrectTx: the contract judged the signature invalid, or the
	// transaction failed its native self-check
	ErrIncorrectTx = errors.New("transaction is incorrect")
)
