package xhsapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"native integer", `42`, 42},
		{"plain digit string", `"123"`, 123},
		{"wan suffix", `"2.1万"`, 21000},
		{"lowercase w suffix", `"3.5w"`, 35000},
		{"uppercase w suffix", `"1W"`, 10000},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"zero", `0`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCount(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCount_Malformed(t *testing.T) {
	_, err := ParseCount(json.RawMessage(`"not-a-number"`))
	assert.Error(t, err)
}
