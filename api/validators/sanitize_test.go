package validators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "trims", input: "  lamp  ", want: "lamp"},
		{name: "drops control characters", input: "la\x00mp\x1b", want: "lamp"},
		{name: "keeps newlines", input: "line one\nline two", want: "line one\nline two"},
		{name: "truncates by rune", input: "héllo wörld", maxLen: 5, want: "héllo"},
		{name: "no limit", input: "unbounded", maxLen: 0, want: "unbounded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SanitizeString(tc.input, tc.maxLen))
		})
	}
}
