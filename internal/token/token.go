package token

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned for token keys outside the tracked set.
var ErrUnsupported = errors.New("token not supported")

// Token is the internal key of a tracked asset.
type Token string

const (
	Ethereum Token = "ethereum"
	Matic    Token = "matic"
)

// tracked holds the tracked set in evaluation order.
var tracked = []Token{Ethereum, Matic}

// providerIDs maps internal keys to CoinGecko coin ids. Keep this table as
// the only place that knows upstream naming.
var providerIDs = map[Token]string{
	Ethereum: "ethereum",
	Matic:    "matic-network",
}

var symbols = map[Token]string{
	Ethereum: "ETH",
	Matic:    "MATIC",
}

// All returns the tracked tokens.
func All() []Token {
	out := make([]Token, len(tracked))
	copy(out, tracked)
	return out
}

// Parse validates a user supplied token key.
func Parse(raw string) (Token, error) {
	t := Token(strings.TrimSpace(raw))
	if _, ok := providerIDs[t]; !ok {
		return "", fmt.Errorf("%w: %q, use 'ethereum' or 'matic'", ErrUnsupported, raw)
	}
	return t, nil
}

// Valid reports whether t is tracked.
func (t Token) Valid() bool {
	_, ok := providerIDs[t]
	return ok
}

// ProviderID returns the upstream coin id.
func (t Token) ProviderID() string {
	return providerIDs[t]
}

// Symbol returns the ticker shown in notifications.
func (t Token) Symbol() string {
	if s, ok := symbols[t]; ok {
		return s
	}
	return strings.ToUpper(string(t))
}

func (t Token) String() string {
	return string(t)
}

// FromProviderID resolves an upstream coin id back to the internal key.
func FromProviderID(id string) (Token, bool) {
	for t, pid := range providerIDs {
		if pid == id {
			return t, true
		}
	}
	return "", false
}
