package signaturechecker

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/crypto-libs/pkg/bn254"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jingkai1/zksync/pkg/ethwatch"
	"github.com/jingkai1/zksync/pkg/types"
)

// stubAuthority answers eth watch queries with canned results
type stubAuthority struct {
	requests  chan ethwatch.Request
	authorize bool
	eip1271   ethwatch.EIP1271Result

	mu          sync.Mutex
	eip1271Msgs [][]byte
}

func newStubAuthority(authorize bool, eip1271 ethwatch.EIP1271Result) *stubAuthority {
	s := &stubAuthority{
		requests:  make(chan ethwatch.Request, 64),
		authorize: authorize,
		eip1271:   eip1271,
	}
	go s.run()
	return s
}

func (s *stubAuthority) run() {
	for req := range s.requests {
		switch q := req.(type) {
		case ethwatch.IsPubKeyChangeAuthorizedRequest:
			q.Resp <- s.authorize
		case ethwatch.CheckEIP1271SignatureRequest:
			s.mu.Lock()
			s.eip1271Msgs = append(s.eip1271Msgs, q.Message)
			s.mu.Unlock()
			q.Resp <- s.eip1271
		}
	}
}

func (s *stubAuthority) lastEIP1271Message() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.eip1271Msgs) == 0 {
		return nil
	}
	return s.eip1271Msgs[len(s.eip1271Msgs)-1]
}

func (s *stubAuthority) Close() {
	close(s.requests)
}

func testBN254Key(t *testing.T, seed byte) *bn254.PrivateKey {
	t.Helper()
	skBytes := make([]byte, 32)
	skBytes[31] = seed
	key, err := bn254.NewPrivateKeyFromBytes(skBytes)
	require.NoError(t, err)
	return key
}

func signedTransfer(t *testing.T, key *bn254.PrivateKey, from common.Address) *types.Transfer {
	t.Helper()
	tx := &types.Transfer{
		From:    from,
		To:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Amount:  big.NewInt(100),
		Fee:     big.NewInt(1),
		TxNonce: 1,
	}
	require.NoError(t, tx.Sign(key))
	return tx
}

func directSignData(t *testing.T, ethKey *ecdsa.PrivateKey, message string) *types.EthSignData {
	t.Helper()
	sig, err := types.SignEthMessage(ethKey, []byte(message))
	require.NoError(t, err)
	return &types.EthSignData{
		Signature: types.TxEthSignature{
			Type:      types.EthSignatureTypeEthereum,
			Signature: sig.Bytes(),
		},
		Message: message,
	}
}

func TestVerifyNativeCheckOnly(t *testing.T) {
	logger := zap.NewNop()
	key := testBN254Key(t, 1)
	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")

	authority := newStubAuthority(false, ethwatch.EIP1271Result{})
	defer authority.Close()

	t.Run("Correct transaction verifies", func(t *testing.T) {
		tx := signedTransfer(t, key, owner)
		req := NewVerifyTxSignatureRequest(tx, nil)

		verified, err := verify(req, authority.requests, logger)
		require.NoError(t, err)
		require.NotNil(t, verified)
		require.Equal(t, tx, verified.Inner().Tx)
		require.Nil(t, verified.Inner().EthSignData)
	})

	t.Run("Tampered transaction fails native check", func(t *testing.T) {
		tx := signedTransfer(t, key, owner)
		tx.Amount = big.NewInt(9999)
		req := NewVerifyTxSignatureRequest(tx, nil)

		verified, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectTx)
		require.Nil(t, verified)
	})
}

func TestVerifyChangePubKeyAuthorization(t *testing.T) {
	logger := zap.NewNop()
	newKey := testBN254Key(t, 2)
	account := common.HexToAddress("0x0000000000000000000000000000000000000002")

	signedChangePk := func() *types.ChangePubKey {
		tx := &types.ChangePubKey{AccountAddr: account, TxNonce: 5}
		require.NoError(t, tx.Sign(newKey))
		return tx
	}

	t.Run("Authorized signature-less change verifies", func(t *testing.T) {
		authority := newStubAuthority(true, ethwatch.EIP1271Result{})
		defer authority.Close()

		req := NewVerifyTxSignatureRequest(signedChangePk(), nil)
		verified, err := verify(req, authority.requests, logger)
		require.NoError(t, err)
		require.NotNil(t, verified)
	})

	t.Run("Denied authorization is ChangePkNotAuthorized", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{})
		defer authority.Close()

		req := NewVerifyTxSignatureRequest(signedChangePk(), nil)
		verified, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrChangePkNotAuthorized)
		require.Nil(t, verified)
	})

	t.Run("Embedded owner approval skips the authority", func(t *testing.T) {
		// Authority would deny, but the owner's embedded approval means
		// it is never asked.
		authority := newStubAuthority(false, ethwatch.EIP1271Result{})
		defer authority.Close()

		ethKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		owner := crypto.PubkeyToAddress(ethKey.PublicKey)

		tx := &types.ChangePubKey{AccountAddr: owner, TxNonce: 5}
		require.NoError(t, tx.Sign(newKey))
		require.NoError(t, tx.SignEth(ethKey))

		req := NewVerifyTxSignatureRequest(tx, nil)
		verified, err := verify(req, authority.requests, logger)
		require.NoError(t, err)
		require.NotNil(t, verified)
	})

	t.Run("Embedded approval from a stranger is rejected", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{})
		defer authority.Close()

		strangerKey, err := crypto.GenerateKey()
		require.NoError(t, err)

		// Signed by an eth key that does not own the account.
		tx := signedChangePk()
		require.NoError(t, tx.SignEth(strangerKey))

		req := NewVerifyTxSignatureRequest(tx, nil)
		verified, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectTx)
		require.Nil(t, verified)
	})

	t.Run("Garbage embedded approval is rejected", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{})
		defer authority.Close()

		tx := signedChangePk()
		garbage := make([]byte, types.PackedEthSignatureLen)
		for i := range garbage {
			garbage[i] = 0xab
		}
		embedded, err := types.NewPackedEthSignature(garbage)
		require.NoError(t, err)
		tx.EthSignature = embedded

		req := NewVerifyTxSignatureRequest(tx, nil)
		verified, err := verify(req, authority.requests, logger)
		require.Error(t, err)
		require.Nil(t, verified)
	})
}

func TestVerifyDirectEthSignature(t *testing.T) {
	logger := zap.NewNop()
	key := testBN254Key(t, 3)

	ethKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(ethKey.PublicKey)

	authority := newStubAuthority(false, ethwatch.EIP1271Result{})
	defer authority.Close()

	message := "Transfer 100 / fee 1 / nonce 1"

	t.Run("Matching signer verifies", func(t *testing.T) {
		tx := signedTransfer(t, key, signerAddr)
		req := NewVerifyTxSignatureRequest(tx, directSignData(t, ethKey, message))

		verified, err := verify(req, authority.requests, logger)
		require.NoError(t, err)
		require.NotNil(t, verified)
		require.NotNil(t, verified.Inner().EthSignData)
	})

	t.Run("Signer account mismatch fails", func(t *testing.T) {
		otherOwner := common.HexToAddress("0x00000000000000000000000000000000000000bb")
		tx := signedTransfer(t, key, otherOwner)
		req := NewVerifyTxSignatureRequest(tx, directSignData(t, ethKey, message))

		_, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectEthSignature)
	})

	t.Run("Mutated signature fails", func(t *testing.T) {
		tx := signedTransfer(t, key, signerAddr)
		signData := directSignData(t, ethKey, message)
		signData.Signature.Signature[10] ^= 0xff
		req := NewVerifyTxSignatureRequest(tx, signData)

		_, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectEthSignature)
	})

	t.Run("Malformed signature fails", func(t *testing.T) {
		tx := signedTransfer(t, key, signerAddr)
		signData := directSignData(t, ethKey, message)
		signData.Signature.Signature = signData.Signature.Signature[:10]
		req := NewVerifyTxSignatureRequest(tx, signData)

		_, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectEthSignature)
	})
}

func TestVerifyEIP1271Signature(t *testing.T) {
	logger := zap.NewNop()
	key := testBN254Key(t, 4)
	owner := common.HexToAddress("0x0000000000000000000000000000000000000004")
	message := "approve rotation"

	eip1271SignData := func() *types.EthSignData {
		return &types.EthSignData{
			Signature: types.TxEthSignature{
				Type:      types.EthSignatureTypeEIP1271,
				Signature: []byte{0xc0, 0xff, 0xee},
			},
			Message: message,
		}
	}

	t.Run("Contract accepts", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{Valid: true})
		defer authority.Close()

		tx := signedTransfer(t, key, owner)
		req := NewVerifyTxSignatureRequest(tx, eip1271SignData())

		verified, err := verify(req, authority.requests, logger)
		require.NoError(t, err)
		require.NotNil(t, verified)

		// The authority must have seen the personal-message wrapping.
		require.Equal(t,
			[]byte("\x19Ethereum Signed Message:\n16"+message),
			authority.lastEIP1271Message())
	})

	t.Run("Contract rejects", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{Valid: false})
		defer authority.Close()

		tx := signedTransfer(t, key, owner)
		req := NewVerifyTxSignatureRequest(tx, eip1271SignData())

		_, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrIncorrectTx)
	})

	t.Run("Authority error", func(t *testing.T) {
		authority := newStubAuthority(false, ethwatch.EIP1271Result{
			Err: errors.New("rpc backend unavailable"),
		})
		defer authority.Close()

		tx := signedTransfer(t, key, owner)
		req := NewVerifyTxSignatureRequest(tx, eip1271SignData())

		_, err := verify(req, authority.requests, logger)
		require.ErrorIs(t, err, ErrEIP1271SignatureVerificationFail)
	})
}

func TestVerifiedTxUnwrapping(t *testing.T) {
	logger := zap.NewNop()
	key := testBN254Key(t, 5)
	owner := common.HexToAddress("0x0000000000000000000000000000000000000005")

	authority := newStubAuthority(false, ethwatch.EIP1271Result{})
	defer authority.Close()

	tx := signedTransfer(t, key, owner)
	req := NewVerifyTxSignatureRequest(tx, nil)

	verified, err := verify(req, authority.requests, logger)
	require.NoError(t, err)

	inner := verified.IntoInner()
	require.Equal(t, tx, inner.Tx)
}
