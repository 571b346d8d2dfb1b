package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseToken(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{1001, 1001, true},
		{int64(7), 7, true},
		{float64(42), 42, true},
		{json.Number("1594"), 1594, true},
		{" 2885 ", 2885, true},
		{"12.0", 12, true},
		{"12.5", 0, false},
		{0, 0, false},
		{-3, 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseToken(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "RELIANCE", NormalizeSymbol("  reliance\t"))
	assert.Equal(t, "", NormalizeSymbol("   "))
}
