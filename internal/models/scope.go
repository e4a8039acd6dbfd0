package models

import (
	"fmt"
	"strings"
)

// AuthorityScope is an operation kind a delegated auctioneer may be granted.
type AuthorityScope uint8

const (
	ScopeDeposit AuthorityScope = iota
	ScopeBuy
	ScopePublicBuy
	ScopeExecuteSale
	ScopeSell
	ScopeCancel
	ScopeWithdraw
)

// ScopeCount is the fixed size of a Scopes set.
const ScopeCount = 7

var scopeNames = [ScopeCount]string{
	"deposit",
	"buy",
	"public_buy",
	"execute_sale",
	"sell",
	"cancel",
	"withdraw",
}

func (s AuthorityScope) String() string {
	if int(s) >= ScopeCount {
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
	return scopeNames[s]
}

// ParseAuthorityScope parses a scope name such as "execute_sale".
func ParseAuthorityScope(name string) (AuthorityScope, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range scopeNames {
		if n == name {
			return AuthorityScope(i), nil
		}
	}
	return 0, fmt.Errorf("unknown authority scope %q", name)
}

// Scopes is the capability bitset of an auctioneer, indexed by AuthorityScope.
type Scopes [ScopeCount]bool

// NewScopes returns a set with the given scopes enabled.
func NewScopes(scopes ...AuthorityScope) Scopes {
	var s Scopes
	for _, scope := range scopes {
		if int(scope) < ScopeCount {
			s[scope] = true
		}
	}
	return s
}

// AllScopes returns a set with every scope enabled.
func AllScopes() Scopes {
	var s Scopes
	for i := range s {
		s[i] = true
	}
	return s
}

// Has reports whether scope is enabled.
func (s Scopes) Has(scope AuthorityScope) bool {
	return int(scope) < ScopeCount && s[scope]
}

// List returns the enabled scopes in enum order.
func (s Scopes) List() []AuthorityScope {
	var out []AuthorityScope
	for i, on := range s {
		if on {
			out = append(out, AuthorityScope(i))
		}
	}
	return out
}
