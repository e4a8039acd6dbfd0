// Package instruction encodes and decodes settlement instruction data: an
// 8 byte discriminator, sha256("global:<name>")[:8], followed by the borsh
// encoded arguments. Optional arguments carry a one byte presence tag.
package instruction

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"

	"github.com/xtrntr/auctionhouse/internal/settlement"
)

// DiscriminatorSize is the length of the instruction tag.
const DiscriminatorSize = 8

// ErrUnknownInstruction is returned for data whose tag matches no
// settlement instruction.
var ErrUnknownInstruction = errors.New("unknown instruction")

// ErrMalformedInstruction is returned when the tag is known but the
// arguments do not decode.
var ErrMalformedInstruction = errors.New("malformed instruction arguments")

// Kind is a settlement entry point.
type Kind uint8

const (
	ExecuteSale Kind = iota
	ExecutePartialSale
	AuctioneerExecuteSale
	AuctioneerExecutePartialSale
)

var kindNames = [...]string{
	ExecuteSale:                  "execute_sale",
	ExecutePartialSale:           "execute_partial_sale",
	AuctioneerExecuteSale:        "auctioneer_execute_sale",
	AuctioneerExecutePartialSale: "auctioneer_execute_partial_sale",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Partial reports whether k carries the partial order arguments.
func (k Kind) Partial() bool {
	return k == ExecutePartialSale || k == AuctioneerExecutePartialSale
}

// Auctioneer reports whether k is a delegated entry point.
func (k Kind) Auctioneer() bool {
	return k == AuctioneerExecuteSale || k == AuctioneerExecutePartialSale
}

// Discriminator returns the tag of k.
func (k Kind) Discriminator() (d [DiscriminatorSize]byte) {
	sum := sha256.Sum256([]byte("global:" + k.String()))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// KindFor returns the entry point for the partial and auctioneer flags.
func KindFor(partial, auctioneer bool) Kind {
	switch {
	case partial && auctioneer:
		return AuctioneerExecutePartialSale
	case partial:
		return ExecutePartialSale
	case auctioneer:
		return AuctioneerExecuteSale
	}
	return ExecuteSale
}

type saleArgs struct {
	EscrowPaymentBump   uint8
	FreeTradeStateBump  uint8
	ProgramAsSignerBump uint8
	BuyerPrice          uint64
	TokenSize           uint64
}

type partialSaleArgs struct {
	saleArgs
	PartialOrderSize  *uint64
	PartialOrderPrice *uint64
}

func (a partialSaleArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.Encode(a.saleArgs); err != nil {
		return err
	}
	for _, v := range []*uint64{a.PartialOrderSize, a.PartialOrderPrice} {
		if v == nil {
			if err := encoder.WriteBool(false); err != nil {
				return err
			}
			continue
		}
		if err := encoder.WriteBool(true); err != nil {
			return err
		}
		if err := encoder.WriteUint64(*v, binary.LittleEndian); err != nil {
			return err
		}
	}
	return nil
}

func (a *partialSaleArgs) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if err := decoder.Decode(&a.saleArgs); err != nil {
		return err
	}
	for _, dst := range []**uint64{&a.PartialOrderSize, &a.PartialOrderPrice} {
		ok, err := decoder.ReadBool()
		if err != nil {
			return err
		}
		if !ok {
			*dst = nil
			continue
		}
		v, err := decoder.ReadUint64(binary.LittleEndian)
		if err != nil {
			return err
		}
		*dst = &v
	}
	return nil
}

func fromArgs(args settlement.Args) saleArgs {
	return saleArgs{
		EscrowPaymentBump:   args.EscrowPaymentBump,
		FreeTradeStateBump:  args.FreeTradeStateBump,
		ProgramAsSignerBump: args.ProgramAsSignerBump,
		BuyerPrice:          args.BuyerPrice,
		TokenSize:           args.TokenSize,
	}
}

func (a saleArgs) toArgs() settlement.Args {
	return settlement.Args{
		EscrowPaymentBump:   a.EscrowPaymentBump,
		FreeTradeStateBump:  a.FreeTradeStateBump,
		ProgramAsSignerBump: a.ProgramAsSignerBump,
		BuyerPrice:          a.BuyerPrice,
		TokenSize:           a.TokenSize,
	}
}

// Encode serializes args as instruction data for k. The partial fields are
// dropped for full sale entry points.
func Encode(k Kind, args settlement.Args) ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, errors.Wrapf(ErrUnknownInstruction, "kind %d", k)
	}
	var buf bytes.Buffer
	d := k.Discriminator()
	buf.Write(d[:])

	var v interface{} = fromArgs(args)
	if k.Partial() {
		v = partialSaleArgs{
			saleArgs:          fromArgs(args),
			PartialOrderSize:  args.PartialOrderSize,
			PartialOrderPrice: args.PartialOrderPrice,
		}
	}
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", k)
	}
	return buf.Bytes(), nil
}

// Decode parses instruction data into its entry point and arguments.
func Decode(data []byte) (Kind, settlement.Args, error) {
	if len(data) < DiscriminatorSize {
		return 0, settlement.Args{}, errors.Wrapf(ErrUnknownInstruction, "data length %d", len(data))
	}
	var k Kind
	found := false
	for i := range kindNames {
		d := Kind(i).Discriminator()
		if bytes.Equal(data[:DiscriminatorSize], d[:]) {
			k, found = Kind(i), true
			break
		}
	}
	if !found {
		return 0, settlement.Args{}, errors.Wrapf(ErrUnknownInstruction, "discriminator %x", data[:DiscriminatorSize])
	}

	decoder := bin.NewBorshDecoder(data[DiscriminatorSize:])
	if !k.Partial() {
		var a saleArgs
		if err := decoder.Decode(&a); err != nil {
			return 0, settlement.Args{}, errors.Wrapf(ErrMalformedInstruction, "%s: %v", k, err)
		}
		return k, a.toArgs(), nil
	}
	var a partialSaleArgs
	if err := decoder.Decode(&a); err != nil {
		return 0, settlement.Args{}, errors.Wrapf(ErrMalformedInstruction, "%s: %v", k, err)
	}
	args := a.toArgs()
	args.PartialOrderSize = a.PartialOrderSize
	args.PartialOrderPrice = a.PartialOrderPrice
	return k, args, nil
}
