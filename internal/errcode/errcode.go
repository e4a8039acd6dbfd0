// Package errcode defines the stable numeric error codes returned by every
// instruction. Callers branch on Code, never on the message text.
package errcode

import (
	"errors"
	"fmt"
)

// Error is a program error with a fixed numeric code.
type Error struct {
	Code   uint32
	Name   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (%d)", e.Name, e.Code)
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Detail)
}

// Is reports whether target is an *Error carrying the same code, so that
// errors.Is(err, errcode.InvalidSeeds) works for errors built with Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e with detail attached.
func (e *Error) Wrap(format string, args ...interface{}) *Error {
	return &Error{Code: e.Code, Name: e.Name, Detail: fmt.Sprintf(format, args...)}
}

func newError(code uint32, name string) *Error {
	return &Error{Code: code, Name: name}
}

// System and token program errors.
var (
	AccountAlreadyInUse = newError(0, "AccountAlreadyInUse")
	InsufficientFunds   = newError(1, "InsufficientFunds")
	MintMismatch        = newError(3, "MintMismatch")
	OwnerMismatch       = newError(4, "OwnerMismatch")
)

// Account constraint errors.
var (
	ConstraintHasOne             = newError(2001, "ConstraintHasOne")
	InvalidSeeds                 = newError(2006, "ConstraintSeeds")
	AccountDiscriminatorMismatch = newError(3002, "AccountDiscriminatorMismatch")
	AccountDidNotDeserialize     = newError(3003, "AccountDidNotDeserialize")
	AccountOwnedByWrongProgram   = newError(3007, "AccountOwnedByWrongProgram")
	AccountNotInitialized        = newError(3012, "AccountNotInitialized")
)

// Auction house program errors.
var (
	PublicKeyMismatch                                      = newError(6000, "PublicKeyMismatch")
	IncorrectOwner                                         = newError(6003, "IncorrectOwner")
	NumericalOverflow                                      = newError(6007, "NumericalOverflow")
	CannotTakeThisActionWithoutAuctionHouseSignOff         = newError(6011, "CannotTakeThisActionWithoutAuctionHouseSignOff")
	DerivedKeyInvalid                                      = newError(6013, "DerivedKeyInvalid")
	MetadataDoesntExist                                    = newError(6014, "MetadataDoesntExist")
	InvalidTokenAmount                                     = newError(6015, "InvalidTokenAmount")
	CannotMatchFreeSalesWithoutAuctionHouseOrSellerSignoff = newError(6017, "CannotMatchFreeSalesWithoutAuctionHouseOrSellerSignoff")
	SellerATACannotHaveDelegate                            = newError(6020, "SellerATACannotHaveDelegate")
	BuyerATACannotHaveDelegate                             = newError(6021, "BuyerATACannotHaveDelegate")
	NoValidSignerPresent                                   = newError(6022, "NoValidSignerPresent")
	InvalidBasisPoints                                     = newError(6023, "InvalidBasisPoints")
	TradeStateDoesntExist                                  = newError(6024, "TradeStateDoesntExist")
	TradeStateIsNotEmpty                                   = newError(6025, "TradeStateIsNotEmpty")
	InstructionMismatch                                    = newError(6027, "InstructionMismatch")
	InvalidAuctioneer                                      = newError(6028, "InvalidAuctioneer")
	MissingAuctioneerScope                                 = newError(6029, "MissingAuctioneerScope")
	MustUseAuctioneerHandler                               = newError(6030, "MustUseAuctioneerHandler")
	NoAuctioneerProgramSet                                 = newError(6031, "NoAuctioneerProgramSet")
	AuctionHouseAlreadyDelegated                           = newError(6033, "AuctionHouseAlreadyDelegated")
	BumpSeedNotInHashMap                                   = newError(6034, "BumpSeedNotInHashMap")
	BuyerTradeStateNotValid                                = newError(6037, "BuyerTradeStateNotValid")
	MissingElementsNeededForPartialBuy                     = newError(6038, "MissingElementsNeededForPartialBuy")
	NotEnoughTokensAvailableForPurchase                    = newError(6039, "NotEnoughTokensAvailableForPurchase")
	PartialBuyPriceMismatch                                = newError(6040, "PartialBuyPriceMismatch")
)

// Code extracts the program error code from err. ok is false when err is
// not a program error.
func Code(err error) (code uint32, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
