package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeState(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	house := solana.NewWallet().PublicKey()
	tokenAccount := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	addr, bump, err := TradeState(wallet, house, tokenAccount, solana.SolMint, mint, 600_000_000, 6)
	require.NoError(t, err)

	again, againBump, err := TradeState(wallet, house, tokenAccount, solana.SolMint, mint, 600_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, bump, againBump)

	seeds := TradeStateSeeds(wallet, house, tokenAccount, solana.SolMint, mint, 600_000_000, 6)
	withBump, err := WithBump(seeds, bump)
	require.NoError(t, err)
	assert.Equal(t, addr, withBump)

	tests := []struct {
		name  string
		price uint64
		size  uint64
		token solana.PublicKey
	}{
		{name: "DifferentPrice", price: 600_000_001, size: 6, token: tokenAccount},
		{name: "DifferentSize", price: 600_000_000, size: 5, token: tokenAccount},
		{name: "FreeTradeState", price: 0, size: 6, token: tokenAccount},
		{name: "PublicBid", price: 600_000_000, size: 6, token: solana.PublicKey{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other, _, err := TradeState(wallet, house, tt.token, solana.SolMint, mint, tt.price, tt.size)
			require.NoError(t, err)
			assert.NotEqual(t, addr, other)
		})
	}
}

func TestTradeStateSeeds_PublicLayout(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	house := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	private := TradeStateSeeds(wallet, house, solana.NewWallet().PublicKey(), solana.SolMint, mint, 1, 1)
	public := TradeStateSeeds(wallet, house, solana.PublicKey{}, solana.SolMint, mint, 1, 1)
	assert.Len(t, private, 8)
	assert.Len(t, public, 7)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, public[5])
}

func TestEscrowPayment(t *testing.T) {
	house := solana.NewWallet().PublicKey()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	ea, _, err := EscrowPayment(house, a)
	require.NoError(t, err)
	eb, _, err := EscrowPayment(house, b)
	require.NoError(t, err)
	assert.NotEqual(t, ea, eb)

	signer, _, err := ProgramAsSigner()
	require.NoError(t, err)
	assert.False(t, signer.IsZero())
}
