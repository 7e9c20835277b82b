package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jingkai1/zksync/pkg/signaturechecker"
	"github.com/jingkai1/zksync/pkg/types"
)

// VerifyTxRequest is the submission body. Tx is decoded according to Type.
type VerifyTxRequest struct {
	Type        string             `json:"type"`
	Tx          json.RawMessage    `json:"tx"`
	EthSignData *types.EthSignData `json:"ethSignData,omitempty"`
}

// VerifyTxResponse reports the verification outcome
type VerifyTxResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// handleVerifyTx handles the /verify_tx endpoint: it submits the
// transaction to the signature checker and waits for its single reply.
func (s *Server) handleVerifyTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		http.Error(w, "Too many submissions", http.StatusTooManyRequests)
		return
	}

	var req VerifyTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	tx, err := decodeTx(req.Type, req.Tx)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode transaction: %v", err), http.StatusBadRequest)
		return
	}

	verifyReq := signaturechecker.NewVerifyTxSignatureRequest(tx, req.EthSignData)
	s.input <- verifyReq
	resp := <-verifyReq.Response

	w.Header().Set("Content-Type", "application/json")
	if resp.Err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(VerifyTxResponse{Valid: false, Error: resp.Err.Error()})
		return
	}

	s.logger.Sugar().Infow("Transaction verified",
		"tx_type", tx.TxType(), "account", tx.Account().Hex())
	_ = json.NewEncoder(w).Encode(VerifyTxResponse{Valid: true})
}

func decodeTx(txType string, raw json.RawMessage) (types.Tx, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("tx is required")
	}

	switch txType {
	case types.TxTypeTransfer:
		var tx types.Transfer
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, err
		}
		return &tx, nil
	case types.TxTypeWithdraw:
		var tx types.Withdraw
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, err
		}
		return &tx, nil
	case types.TxTypeChangePubKey:
		var tx types.ChangePubKey
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, err
		}
		return &tx, nil
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}
}
