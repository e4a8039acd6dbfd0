package instruction

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/auctionhouse/internal/settlement"
)

func u64(v uint64) *uint64 { return &v }

func TestDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:execute_partial_sale"))
	d := ExecutePartialSale.Discriminator()
	assert.Equal(t, sum[:8], d[:])
	assert.NotEqual(t, ExecuteSale.Discriminator(), AuctioneerExecuteSale.Discriminator())
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, ExecuteSale, KindFor(false, false))
	assert.Equal(t, ExecutePartialSale, KindFor(true, false))
	assert.Equal(t, AuctioneerExecuteSale, KindFor(false, true))
	assert.Equal(t, AuctioneerExecutePartialSale, KindFor(true, true))
	assert.True(t, AuctioneerExecutePartialSale.Partial())
	assert.True(t, AuctioneerExecutePartialSale.Auctioneer())
	assert.False(t, ExecuteSale.Partial())
}

func TestEncodeDecode(t *testing.T) {
	base := settlement.Args{
		EscrowPaymentBump:   254,
		FreeTradeStateBump:  253,
		ProgramAsSignerBump: 255,
		BuyerPrice:          600_000_000,
		TokenSize:           6,
	}
	partial := base
	partial.PartialOrderSize = u64(3)
	partial.PartialOrderPrice = u64(300_000_000)

	tests := []struct {
		name    string
		kind    Kind
		args    settlement.Args
		wantLen int
		want    settlement.Args
	}{
		{name: "Full", kind: ExecuteSale, args: base, wantLen: 27, want: base},
		{name: "FullDropsPartialFields", kind: AuctioneerExecuteSale, args: partial, wantLen: 27, want: base},
		{name: "Partial", kind: ExecutePartialSale, args: partial, wantLen: 45, want: partial},
		{name: "PartialNone", kind: AuctioneerExecutePartialSale, args: base, wantLen: 29, want: base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.kind, tt.args)
			require.NoError(t, err)
			assert.Len(t, data, tt.wantLen)

			kind, args, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	args := settlement.Args{
		EscrowPaymentBump:   1,
		FreeTradeStateBump:  2,
		ProgramAsSignerBump: 3,
		BuyerPrice:          600_000_000,
		TokenSize:           6,
		PartialOrderSize:    u64(3),
		PartialOrderPrice:   u64(300_000_000),
	}
	data, err := Encode(ExecutePartialSale, args)
	require.NoError(t, err)

	body := data[DiscriminatorSize:]
	assert.Equal(t, []byte{1, 2, 3}, body[:3])
	assert.Equal(t, uint64(600_000_000), binary.LittleEndian.Uint64(body[3:11]))
	assert.Equal(t, uint64(6), binary.LittleEndian.Uint64(body[11:19]))
	assert.Equal(t, byte(1), body[19])
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(body[20:28]))
	assert.Equal(t, byte(1), body[28])
	assert.Equal(t, uint64(300_000_000), binary.LittleEndian.Uint64(body[29:37]))
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrUnknownInstruction))

	_, _, err = Decode(make([]byte, 27))
	assert.True(t, errors.Is(err, ErrUnknownInstruction))

	for _, k := range []Kind{ExecuteSale, ExecutePartialSale, AuctioneerExecutePartialSale} {
		d := k.Discriminator()
		_, _, err = Decode(append(d[:], 1, 2))
		assert.True(t, errors.Is(err, ErrMalformedInstruction), "%s: %v", k, err)
		assert.False(t, errors.Is(err, ErrUnknownInstruction))
	}
}
