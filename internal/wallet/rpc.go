package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"SwapSentinel/internal/model"
)

// RPC wraps the Solana JSON-RPC calls the bot needs.
type RPC struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewRPC(endpoint string) *RPC {
	return &RPC{client: rpc.New(endpoint), commitment: rpc.CommitmentConfirmed}
}

// Healthy reports whether the node answers getHealth with "ok".
func (r *RPC) Healthy(ctx context.Context) bool {
	out, err := r.client.GetHealth(ctx)
	return err == nil && out == rpc.HealthOk
}

// SOLBalance returns the native balance of owner in SOL.
func (r *RPC) SOLBalance(ctx context.Context, owner solana.PublicKey) (float64, error) {
	res, err := r.client.GetBalance(ctx, owner, r.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w: %w", model.ErrTransientNetwork, err)
	}
	v, _ := decimal.NewFromUint64(res.Value).Shift(-model.SOLDecimals).Float64()
	return v, nil
}

// TokenBalance returns the balance of owner's associated token account for
// mint, or 0 if the account does not exist yet.
func (r *RPC) TokenBalance(ctx context.Context, owner solana.PublicKey, mint string) (float64, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("mint %q: %w", mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mintKey)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}
	res, err := r.client.GetTokenAccountBalance(ctx, ata, r.commitment)
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("get token balance: %w: %w", model.ErrTransientNetwork, err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := decimal.NewFromString(res.Value.Amount)
	if err != nil {
		return 0, fmt.Errorf("token amount %q: %w", res.Value.Amount, err)
	}
	v, _ := amount.Shift(-int32(res.Value.Decimals)).Float64()
	return v, nil
}

// SendTransaction submits signed bytes with preflight simulation.
func (r *RPC) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	sig, err := r.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: r.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w: %w", model.ErrTransientNetwork, err)
	}
	return sig.String(), nil
}

// SignatureStatus maps getSignatureStatuses onto model.TxStatus.
func (r *RPC) SignatureStatus(ctx context.Context, signature string) (model.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return model.TxPending, fmt.Errorf("signature %q: %w", signature, err)
	}
	res, err := r.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return model.TxPending, fmt.Errorf("signature status: %w: %w", model.ErrTransientNetwork, err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return model.TxPending, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return model.TxFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return model.TxFinalized, nil
	case rpc.ConfirmationStatusConfirmed:
		return model.TxConfirmed, nil
	default:
		return model.TxPending, nil
	}
}
