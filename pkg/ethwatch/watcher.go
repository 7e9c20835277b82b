package ethwatch

import (
	"context"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jingkai1/zksync/pkg/logger"
	"github.com/jingkai1/zksync/pkg/types"
)

const eip1271ABIJSON = `[{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"payable":false,"stateMutability":"view","type":"function"}]`

// eip1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)"))
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var eip1271ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(eip1271ABIJSON))
	if err != nil {
		panic(err)
	}
	eip1271ABI = parsed
}

type authFactKey struct {
	address common.Address
	nonce   types.Nonce
}

// Watcher serves authorization queries. Pubkey-change authorizations are
// facts recorded from on-chain events; EIP-1271 checks are forwarded to
// the account contract through the configured caller.
type Watcher struct {
	requests <-chan Request
	caller   bind.ContractCaller
	logger   *zap.Logger

	mu        sync.RWMutex
	authFacts map[authFactKey]types.PubKeyHash
}

// NewWatcher creates a watcher draining the given request channel.
// caller may be nil, in which case every EIP-1271 check reports an error
// result (no backend to ask).
func NewWatcher(requests <-chan Request, caller bind.ContractCaller, log *zap.Logger) *Watcher {
	if log == nil {
		log, _ = logger.NewLogger(&logger.LoggerConfig{Debug: false})
	}
	return &Watcher{
		requests:  requests,
		caller:    caller,
		logger:    log,
		authFacts: make(map[authFactKey]types.PubKeyHash),
	}
}

// RecordPubKeyChangeAuthorization records an on-chain authorization fact:
// the account committed to rotating to pkHash at the given nonce.
func (w *Watcher) RecordPubKeyChangeAuthorization(address common.Address, nonce types.Nonce, pkHash types.PubKeyHash) {
	w.mu.Lock()
	w.authFacts[authFactKey{address: address, nonce: nonce}] = pkHash
	w.mu.Unlock()

	w.logger.Sugar().Debugw("Recorded pubkey change authorization",
		"address", address.Hex(), "nonce", nonce, "pubkey_hash", pkHash.String())
}

// Run drains the request channel until it is closed or ctx is cancelled.
// Replies are delivered on each request's own channel; a full or abandoned
// reply channel is skipped rather than blocked on.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			w.handle(ctx, req)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, req Request) {
	switch q := req.(type) {
	case IsPubKeyChangeAuthorizedRequest:
		authorized := w.isPubKeyChangeAuthorized(q.Address, q.Nonce, q.PubKeyHash)
		select {
		case q.Resp <- authorized:
		default:
			w.logger.Sugar().Warnw("Dropped pubkey change authorization reply", "address", q.Address.Hex())
		}
	case CheckEIP1271SignatureRequest:
		valid, err := w.checkEIP1271Signature(ctx, q.Address, q.Message, q.Signature)
		select {
		case q.Resp <- EIP1271Result{Valid: valid, Err: err}:
		default:
			w.logger.Sugar().Warnw("Dropped EIP-1271 check reply", "address", q.Address.Hex())
		}
	default:
		w.logger.Sugar().Warnw("Unknown eth watch request type", "request", req)
	}
}

func (w *Watcher) isPubKeyChangeAuthorized(address common.Address, nonce types.Nonce, pkHash types.PubKeyHash) bool {
	w.mu.RLock()
	recorded, ok := w.authFacts[authFactKey{address: address, nonce: nonce}]
	w.mu.RUnlock()
	return ok && recorded == pkHash
}

// checkEIP1271Signature calls isValidSignature on the account contract and
// compares the returned magic value.
func (w *Watcher) checkEIP1271Signature(ctx context.Context, address common.Address, message, signature []byte) (bool, error) {
	if w.caller == nil {
		return false, errors.New("no contract caller configured for EIP-1271 checks")
	}

	digest := crypto.Keccak256Hash(message)
	callData, err := eip1271ABI.Pack("isValidSignature", digest, signature)
	if err != nil {
		return false, errors.Wrap(err, "failed to pack isValidSignature call")
	}

	ret, err := w.caller.CallContract(ctx, ethereum.CallMsg{To: &address, Data: callData}, nil)
	if err != nil {
		return false, errors.Wrapf(err, "isValidSignature call to %s failed", address.Hex())
	}

	out, err := eip1271ABI.Unpack("isValidSignature", ret)
	if err != nil {
		return false, errors.Wrap(err, "failed to unpack isValidSignature return")
	}
	magic, ok := out[0].([4]byte)
	if !ok {
		return false, errors.Errorf("unexpected isValidSignature return type %T", out[0])
	}

	return magic == eip1271MagicValue, nil
}
