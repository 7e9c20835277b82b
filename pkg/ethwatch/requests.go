// Package ethwatch answers authorization questions about Ethereum-side
// state: whether a signature-less pubkey change was pre-authorized
// on-chain, and whether a contract account accepts a signature under
// EIP-1271. Consumers talk to it over a request channel; every request
// carries its own single-use reply channel.
package ethwatch

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/jingkai1/zksync/pkg/types"
)

// Request is a query sent to the watcher. The sending handle
// (chan<- Request) is safe for concurrent use by any number of tasks.
type Request interface {
	isEthWatchRequest()
}

// IsPubKeyChangeAuthorizedRequest asks whether the account pre-authorized
// rotating to the given key fingerprint at the given nonce.
type IsPubKeyChangeAuthorizedRequest struct {
	Address    common.Address
	Nonce      types.Nonce
	PubKeyHash types.PubKeyHash

	// Resp receives exactly one answer; must be buffered
	Resp chan<- bool
}

func (IsPubKeyChangeAuthorizedRequest) isEthWatchRequest() {}

// EIP1271Result is the outcome of a contract signature check. Err is set
// when the check itself could not be performed; Valid is meaningful only
// when Err is nil.
type EIP1271Result struct {
	Valid bool
	Err   error
}

// CheckEIP1271SignatureRequest asks the account's contract to validate a
// signature over the given (already prefix-wrapped) message bytes.
type CheckEIP1271SignatureRequest struct {
	Address   common.Address
	Message   []byte
	Signature []byte

	// Resp receives exactly one answer; must be buffered
	Resp chan<- EIP1271Result
}

func (CheckEIP1271SignatureRequest) isEthWatchRequest() {}
