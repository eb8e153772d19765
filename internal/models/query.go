package models

import (
	"regexp"
	"strings"
)

const symbolMarker = "$"

var contractPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// TokenQuery is a raw user or detected string classified exactly once.
type TokenQuery struct {
	Raw    string
	Kind   QueryKind
	Symbol string
}

// Classify decides whether raw is a contract address or a symbol. The contract
// pattern takes precedence; symbol queries lose one leading marker.
func Classify(raw string) TokenQuery {
	trimmed := strings.TrimSpace(raw)
	if IsContractAddress(trimmed) {
		return TokenQuery{Raw: trimmed, Kind: KindContract}
	}
	return TokenQuery{Raw: trimmed, Kind: KindToken, Symbol: StripMarker(trimmed)}
}

// IsContractAddress reports whether s is a 0x-prefixed 40 hex character address,
// ignoring one leading marker.
func IsContractAddress(s string) bool {
	return contractPattern.MatchString(StripMarker(strings.TrimSpace(s)))
}

// StripMarker removes one leading symbol marker and surrounding whitespace.
func StripMarker(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), symbolMarker))
}
