package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Account binds the RPC client to the bot's wallet and quote mint.
type Account struct {
	RPC      *RPC
	Owner    solana.PublicKey
	USDCMint string
}

func (a *Account) Healthy(ctx context.Context) bool { return a.RPC.Healthy(ctx) }

// Balances returns the SOL and USDC balances of the wallet.
func (a *Account) Balances(ctx context.Context) (sol, usdc float64, err error) {
	sol, err = a.RPC.SOLBalance(ctx, a.Owner)
	if err != nil {
		return 0, 0, fmt.Errorf("sol balance: %w", err)
	}
	usdc, err = a.RPC.TokenBalance(ctx, a.Owner, a.USDCMint)
	if err != nil {
		return 0, 0, fmt.Errorf("usdc balance: %w", err)
	}
	return sol, usdc, nil
}
