// Package util contains helper functions used around the code.
package util

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals of the ether base unit (wei).
const EtherDecimals = 18

var (
	addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	hashRe    = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// IsAddress reports whether s has the shape of a hex address: 0x followed by 40 hex digits.
func IsAddress(s string) bool {
	return addressRe.MatchString(s)
}

// IsHash reports whether s has the shape of a transaction hash: 0x followed by 64 hex digits.
func IsHash(s string) bool {
	return hashRe.MatchString(s)
}

// Normalize lowercases and trims an address so it can be used as a key.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// FromWei converts an amount in wei to ether.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

// ToWei converts an amount in ether to wei, truncating anything below one wei.
func ToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(EtherDecimals).Truncate(0).BigInt()
}

// ParseBlock parses a block number given in hex (0x prefixed) or decimal. Missing or unparsable values yield 0 and
// false.
func ParseBlock(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}

	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
