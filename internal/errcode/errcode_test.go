package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	wrapped := fmt.Errorf("settle: %w", InvalidSeeds.Wrap("seller trade state %s", "abc"))

	assert.True(t, errors.Is(wrapped, InvalidSeeds))
	assert.False(t, errors.Is(wrapped, BuyerTradeStateNotValid))

	code, ok := Code(wrapped)
	assert.True(t, ok)
	assert.Equal(t, uint32(2006), code)

	_, ok = Code(errors.New("plain"))
	assert.False(t, ok)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "PartialBuyPriceMismatch (6040)", PartialBuyPriceMismatch.Error())
	assert.Equal(t, "InsufficientFunds (1): escrow short by 5", InsufficientFunds.Wrap("escrow short by %d", 5).Error())
}
