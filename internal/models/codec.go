package models

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"

	"github.com/xtrntr/auctionhouse/internal/errcode"
)

// DiscriminatorSize is the length of the type tag prepended to account data.
const DiscriminatorSize = 8

// State is a typed account payload stored behind a discriminator.
type State interface {
	Discriminator() [DiscriminatorSize]byte
}

func accountDiscriminator(name string) (d [DiscriminatorSize]byte) {
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	auctionHouseDiscriminator    = accountDiscriminator("AuctionHouse")
	auctioneerDiscriminator      = accountDiscriminator("Auctioneer")
	metadataDiscriminator        = accountDiscriminator("Metadata")
	mintDiscriminator            = accountDiscriminator("Mint")
	tokenAccountDiscriminator    = accountDiscriminator("TokenAccount")
	purchaseReceiptDiscriminator = accountDiscriminator("PurchaseReceipt")
)

func (*AuctionHouse) Discriminator() [DiscriminatorSize]byte    { return auctionHouseDiscriminator }
func (*Auctioneer) Discriminator() [DiscriminatorSize]byte      { return auctioneerDiscriminator }
func (*Metadata) Discriminator() [DiscriminatorSize]byte        { return metadataDiscriminator }
func (*Mint) Discriminator() [DiscriminatorSize]byte            { return mintDiscriminator }
func (*TokenAccount) Discriminator() [DiscriminatorSize]byte    { return tokenAccountDiscriminator }
func (*PurchaseReceipt) Discriminator() [DiscriminatorSize]byte { return purchaseReceiptDiscriminator }

// Marshal encodes v as discriminator followed by its borsh encoding.
func Marshal(v State) ([]byte, error) {
	var buf bytes.Buffer
	d := v.Discriminator()
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal into v.
func Unmarshal(data []byte, v State) error {
	if len(data) < DiscriminatorSize {
		return errcode.AccountDidNotDeserialize.Wrap("data length %d", len(data))
	}
	d := v.Discriminator()
	if !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return errcode.AccountDiscriminatorMismatch
	}
	if err := bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(v); err != nil {
		return errcode.AccountDidNotDeserialize.Wrap("%v", err)
	}
	return nil
}
