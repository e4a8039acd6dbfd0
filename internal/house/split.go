package house

import (
	"math/bits"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// Split is how the price of one settlement is divided.
type Split struct {
	// CreatorFees is aligned with the metadata creator list.
	CreatorFees    []uint64
	Royalties      uint64
	HouseFee       uint64
	SellerProceeds uint64
}

// mulDiv returns floor(a*b/d) using a 128 bit intermediate.
func mulDiv(a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, errcode.NumericalOverflow.Wrap("%d * %d / %d", a, b, d)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, errcode.NumericalOverflow.Wrap("%d - %d", a, b)
	}
	return diff, nil
}

// SplitPrice divides price between the metadata creators, the house and
// the seller. Royalties are price * metadata bps / 10000 shared by creator
// percentage; the house fee is floor(price * houseBps / 10000) on the full
// price. Rounding dust from the creator shares stays with the seller so the
// parts always sum to price.
func SplitPrice(price uint64, houseBps uint16, meta *models.Metadata) (*Split, error) {
	s := &Split{}
	if meta != nil && len(meta.Creators) > 0 {
		total, err := mulDiv(price, uint64(meta.SellerFeeBasisPoints), MaxBasisPoints)
		if err != nil {
			return nil, err
		}
		s.CreatorFees = make([]uint64, len(meta.Creators))
		for i, c := range meta.Creators {
			fee, err := mulDiv(total, uint64(c.Share), 100)
			if err != nil {
				return nil, err
			}
			s.CreatorFees[i] = fee
			s.Royalties += fee
		}
	}

	fee, err := mulDiv(price, uint64(houseBps), MaxBasisPoints)
	if err != nil {
		return nil, err
	}
	s.HouseFee = fee

	rest, err := checkedSub(price, s.Royalties)
	if err != nil {
		return nil, err
	}
	if s.SellerProceeds, err = checkedSub(rest, s.HouseFee); err != nil {
		return nil, err
	}
	return s, nil
}
