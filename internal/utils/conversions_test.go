package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-lichess-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestScopeList(t *testing.T) {
	tests := []struct {
		name  string
		claim any
		want  []string
	}{
		{"space separated", "board:play  challenge:write", []string{"board:play", "challenge:write"}},
		{"array", []any{"board:play", 7, "board:play", "preference:read"}, []string{"board:play", "preference:read"}},
		{"string slice", []string{" email:read ", ""}, []string{"email:read"}},
		{"missing", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, utils.ScopeList(tt.claim))
		})
	}
}
