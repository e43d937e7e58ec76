package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"EUR/USD climbs", []string{"eur", "usd", "climbs"}},
		{"  a  b cd ", []string{"cd"}},
		{"Fed's 2024 outlook", []string{"fed", "2024", "outlook"}},
		{"", nil},
		{"!!", nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenize(tt.in), "tokenize(%q)", tt.in)
	}
}
