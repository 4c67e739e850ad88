package util

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsAddress(t *testing.T) {
	cases := []struct {
		in  string
		exp bool
	}{
		{"0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4", true},
		{"0x357DD3856D856197C1A000BBAB4ABCB97DFC92C4", true},
		{"0xinvalid", false},
		{"357dd3856d856197c1a000bbAb4aBCB97Dfc92c4", false},
		{"0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c", false},
		{"0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4aa", false},
		{"", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.exp, IsAddress(c.in), c.in)
	}
}

func TestIsHash(t *testing.T) {
	assert.True(t, IsHash("0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a5872"))
	assert.False(t, IsHash("0x123456"))
	assert.False(t, IsHash("0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a587z"))
}

func TestWei(t *testing.T) {
	wei, _ := new(big.Int).SetString("1615796230433485760", 10)
	assert.Equal(t, "1.61579623043348576", FromWei(wei).String())
	assert.Equal(t, "0", FromWei(nil).String())

	assert.Equal(t, "500000000000000000", ToWei(decimal.RequireFromString("0.5")).String())
	assert.Equal(t, "1", ToWei(decimal.RequireFromString("0.0000000000000000019")).String())
}

func TestParseBlock(t *testing.T) {
	cases := []struct {
		in string
		n  uint64
		ok bool
	}{
		{"0x29bf9b", 2736027, true},
		{"2736027", 2736027, true},
		{"", 0, false},
		{"0xzz", 0, false},
	}

	for _, c := range cases {
		n, ok := ParseBlock(c.in)
		assert.Equal(t, c.n, n, c.in)
		assert.Equal(t, c.ok, ok, c.in)
	}
}

func TestIn(t *testing.T) {
	ss := []string{"0x1", "success"}

	assert.True(t, In(ss, "success"))
	assert.False(t, In(ss, "0x0"))
	assert.False(t, In(nil, ""))
}
